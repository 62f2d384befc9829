package telegram

import (
	"context"
	"fmt"
	"time"

	"crypto-alert-bot/internal/commands"
	"crypto-alert-bot/internal/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token  string
	ChatID int64
	Debug  bool
	// UpdatesTimeout is the long polling timeout in seconds.
	UpdatesTimeout int
	// APIEndpoint overrides tgbotapi.APIEndpoint.
	APIEndpoint string
	// RequestTimeout bounds every HTTP call to the Bot API.
	RequestTimeout time.Duration
	// SendAttempts is the number of delivery attempts per message.
	SendAttempts int
	RetryMin     time.Duration
	RetryMax     time.Duration
	Metrics      *metrics.Metrics
}

// CommandHandler answers chat commands.
type CommandHandler interface {
	Handle(ctx context.Context, command, args string) commands.Reply
}

// Bot telegram interaction client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
	ParseMode string
}

// DeliveryError is returned when a message could not be delivered.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("could not deliver message after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
