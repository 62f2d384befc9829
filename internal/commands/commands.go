package commands

import (
	"context"
	"strings"
	"time"

	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Reply is the answer to a command. When Photo is set Text is its caption.
type Reply struct {
	Text      string
	ParseMode string
	Photo     []byte
}

// MenuItem is an entry of the command menu shown by Telegram clients.
type MenuItem struct {
	Command     string
	Description string
}

// Store is the part of the alert store the commands use.
type Store interface {
	AddAlert(ctx context.Context, tokenName string, alertType types.AlertType, targetPrice decimal.Decimal, tokenContract string) (int64, error)
	GetAllAlerts(ctx context.Context) ([]types.Alert, error)
	GetAlert(ctx context.Context, id int64) (*types.Alert, error)
	SetAlertActive(ctx context.Context, id int64, active bool) (bool, error)
	DeleteAlert(ctx context.Context, id int64) (bool, error)
	CountActiveAlerts(ctx context.Context) (int, error)
	CountActiveAlertsByToken(ctx context.Context, tokenName string) (int, error)
	GetPriceHistory(ctx context.Context, tokenName string, since time.Time) ([]types.PricePoint, error)
}

// Notifier delivers a message to the configured chat.
type Notifier interface {
	Send(ctx context.Context, text, parseMode string) (int, error)
}

// Checker runs one alert check on demand.
type Checker interface {
	RunOnce(ctx context.Context) (alert.Report, error)
}

type Config struct {
	MaxAlertsPerToken int
	MaxAlertsPerUser  int
	ParseMode         string
	// ChartWindow is how far back /chart looks, 24h by default.
	ChartWindow  time.Duration
	QuoteTimeout time.Duration
	StartedAt    time.Time
}

// Handler answers chat commands.
type Handler struct {
	store    Store
	source   price.Source
	checker  Checker
	notifier Notifier
	cfg      Config
}

// NewHandler wires the command handler. checker and notifier may be nil,
// which disables /check and /report.
func NewHandler(store Store, source price.Source, checker Checker, notifier Notifier, cfg Config) *Handler {
	if cfg.ChartWindow <= 0 {
		cfg.ChartWindow = 24 * time.Hour
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Handler{store: store, source: source, checker: checker, notifier: notifier, cfg: cfg}
}

// Menu lists the commands published to Telegram.
func Menu() []MenuItem {
	return []MenuItem{
		{Command: "alert", Description: translation.Translate("Create a price alert for a token")},
		{Command: "list", Description: translation.Translate("Show all price alerts")},
		{Command: "remove", Description: translation.Translate("Delete a price alert by ID")},
		{Command: "pause", Description: translation.Translate("Pause a price alert by ID")},
		{Command: "resume", Description: translation.Translate("Resume a paused price alert")},
		{Command: "price", Description: translation.Translate("Show the current price of a token")},
		{Command: "chart", Description: translation.Translate("Chart the recorded price of a token")},
		{Command: "check", Description: translation.Translate("Check alerts now")},
		{Command: "status", Description: translation.Translate("Show system information")},
		{Command: "report", Description: translation.Translate("Send a detailed report to the alert chat")},
		{Command: "ping", Description: translation.Translate("Check whether the bot is alive")},
	}
}

// Handle dispatches a command without its leading slash.
func (h *Handler) Handle(ctx context.Context, command, args string) Reply {
	args = strings.TrimSpace(args)
	log.WithField("command", command).Debugf("processing command /%s with argument :%s", command, args)

	switch strings.ToLower(command) {
	case "alert":
		return h.reply(h.alert(ctx, args))
	case "list", "scheduled":
		return h.reply(h.list(ctx))
	case "remove":
		return h.reply(h.remove(ctx, args))
	case "pause":
		return h.reply(h.setActive(ctx, args, false))
	case "resume":
		return h.reply(h.setActive(ctx, args, true))
	case "price", "tokenprice":
		return h.reply(h.price(ctx, args))
	case "chart":
		return h.chart(ctx, args)
	case "check":
		return h.reply(h.check(ctx))
	case "status":
		return h.reply(h.status(ctx))
	case "report":
		return h.reply(h.report(ctx))
	case "ping":
		return Reply{Text: "pong"}
	case "start", "help":
		return h.reply(h.help())
	}
	return h.reply(h.escape(translation.Translate("Unknown command /%s, try /help", command)))
}

func (h *Handler) reply(text string) Reply {
	return Reply{Text: text, ParseMode: h.cfg.ParseMode}
}

func (h *Handler) escape(text string) string {
	return helpers.Escape(h.cfg.ParseMode, text)
}

func (h *Handler) bold(text string) string {
	return helpers.Bold(h.cfg.ParseMode, h.escape(text))
}

// errorText formats a user facing error line.
func (h *Handler) errorText(text string) string {
	return "❌ " + h.bold(translation.Translate("Error:")) + " " + h.escape(text)
}

func (h *Handler) help() string {
	var b strings.Builder
	b.WriteString(h.bold(translation.Translate("Available commands")))
	b.WriteString("\n\n")
	for _, item := range Menu() {
		b.WriteString(h.escape("/" + item.Command + " - " + item.Description))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(h.escape(alertUsage()))
	return b.String()
}
