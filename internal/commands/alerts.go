package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crypto-alert-bot/internal/database"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func alertUsage() string {
	return translation.Translate("Usage: /alert <token> <above|below> <price> [contract]") + "\n" +
		translation.Translate("Example: /alert BTC above 50000") + "\n" +
		translation.Translate("Example: /alert ETH below 3000")
}

func (h *Handler) alert(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return h.errorText(translation.Translate("Wrong format.")) + "\n\n" + h.escape(alertUsage())
	}

	token := types.CanonicalToken(fields[0])
	alertType, ok := types.ParseAlertType(fields[1])
	if !ok {
		return h.errorText(translation.Translate("The alert type must be 'above' or 'below'."))
	}

	target, err := decimal.NewFromString(fields[2])
	if err != nil || !target.IsPositive() {
		return h.errorText(translation.Translate("The target price must be a valid number greater than zero."))
	}

	var contract string
	if len(fields) >= 4 {
		contract = fields[3]
	}

	if refusal := h.checkLimits(ctx, token); refusal != "" {
		return refusal
	}

	id, err := h.store.AddAlert(ctx, token, alertType, target, contract)
	if err != nil {
		var verr *database.ValidationError
		if errors.As(err, &verr) {
			return h.errorText(verr.Error())
		}
		return h.storageFailure("create alert", err)
	}

	var b strings.Builder
	b.WriteString("✅ " + h.bold(translation.Translate("Alert created")) + "\n\n")
	h.field(&b, translation.Translate("ID"), strconv.FormatInt(id, 10))
	h.field(&b, translation.Translate("Token"), token)
	if contract != "" {
		h.field(&b, translation.Translate("Contract"), contract)
	}
	h.field(&b, translation.Translate("Type"), directionText(alertType))
	h.field(&b, translation.Translate("Target price"), target.String())
	return strings.TrimRight(b.String(), "\n")
}

// checkLimits returns the refusal to send when one more active alert on
// token would exceed a configured limit, or "" when it fits.
func (h *Handler) checkLimits(ctx context.Context, token string) string {
	if h.cfg.MaxAlertsPerToken > 0 {
		n, err := h.store.CountActiveAlertsByToken(ctx, token)
		if err != nil {
			return h.storageFailure("count alerts", err)
		}
		if n >= h.cfg.MaxAlertsPerToken {
			return h.errorText(translation.Translate("You already have %d active alerts for %s. The maximum is %d.",
				n, token, h.cfg.MaxAlertsPerToken))
		}
	}
	if h.cfg.MaxAlertsPerUser > 0 {
		n, err := h.store.CountActiveAlerts(ctx)
		if err != nil {
			return h.storageFailure("count alerts", err)
		}
		if n >= h.cfg.MaxAlertsPerUser {
			return h.errorText(translation.Translate("You already have %d active alerts. The maximum is %d.",
				n, h.cfg.MaxAlertsPerUser))
		}
	}
	return ""
}

func (h *Handler) field(b *strings.Builder, name, value string) {
	b.WriteString(h.bold(name+":") + " " + h.escape(value) + "\n")
}

func directionText(t types.AlertType) string {
	if t == types.Below {
		return translation.Translate("below")
	}
	return translation.Translate("above")
}

func (h *Handler) list(ctx context.Context) string {
	alerts, err := h.store.GetAllAlerts(ctx)
	if err != nil {
		return h.storageFailure("list alerts", err)
	}
	if len(alerts) == 0 {
		return h.escape(translation.Translate("No alerts scheduled. Create one with /alert."))
	}

	var b strings.Builder
	b.WriteString("📋 " + h.bold(translation.Translate("Scheduled alerts")))

	// Rows arrive ordered by token.
	token := ""
	for _, a := range alerts {
		if a.TokenName != token {
			token = a.TokenName
			b.WriteString("\n\n" + h.bold(token) + "\n")
		}

		status := "🟢"
		if !a.IsActive {
			status = "⏸"
		}
		line := fmt.Sprintf(" %s %s", directionText(a.AlertType), a.TargetPrice.String())
		if a.TriggerCount > 0 {
			line += " · " + translation.Translate("triggered %d times", a.TriggerCount)
			if a.LastTriggered != nil {
				line += ", " + humanize.Time(*a.LastTriggered)
			}
		}
		b.WriteString(status + " " + helpers.Code(h.cfg.ParseMode, h.escape(fmt.Sprintf("#%d", a.ID))) + h.escape(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) remove(ctx context.Context, args string) string {
	id, ok := parseID(args)
	if !ok {
		return h.errorText(translation.Translate("Usage: /remove <id>"))
	}

	deleted, err := h.store.DeleteAlert(ctx, id)
	if err != nil {
		return h.storageFailure("delete alert", err)
	}
	if !deleted {
		return h.errorText(translation.Translate("Alert #%d not found.", id))
	}
	return "🗑 " + h.escape(translation.Translate("Alert #%d removed.", id))
}

func (h *Handler) setActive(ctx context.Context, args string, active bool) string {
	id, ok := parseID(args)
	if !ok {
		if active {
			return h.errorText(translation.Translate("Usage: /resume <id>"))
		}
		return h.errorText(translation.Translate("Usage: /pause <id>"))
	}

	if active {
		a, err := h.store.GetAlert(ctx, id)
		if errors.Is(err, database.ErrAlertNotFound) {
			return h.errorText(translation.Translate("Alert #%d not found.", id))
		}
		if err != nil {
			return h.storageFailure("load alert", err)
		}
		if !a.IsActive {
			if refusal := h.checkLimits(ctx, a.TokenName); refusal != "" {
				return refusal
			}
		}
	}

	changed, err := h.store.SetAlertActive(ctx, id, active)
	if err != nil {
		return h.storageFailure("update alert", err)
	}
	if !changed {
		return h.errorText(translation.Translate("Alert #%d not found.", id))
	}
	if active {
		return "▶️ " + h.escape(translation.Translate("Alert #%d resumed.", id))
	}
	return "⏸ " + h.escape(translation.Translate("Alert #%d paused.", id))
}

func (h *Handler) storageFailure(op string, err error) string {
	log.Errorf("command failed to %s: %v", op, err)
	return h.errorText(translation.Translate("The alert database is not available, try again later."))
}

func parseID(args string) (int64, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(args), "#")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formatUSD renders a quote for humans.
func formatUSD(d decimal.Decimal) string {
	return "$" + helpers.FormatPriceUS(d)
}
