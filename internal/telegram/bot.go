package telegram

import (
	"bytes"
	"context"
	"net/http"
	"runtime"
	"time"

	"crypto-alert-bot/internal/commands"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	if c.APIEndpoint == "" {
		c.APIEndpoint = tgbotapi.APIEndpoint
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = 3
	}
	if c.RetryMin <= 0 {
		c.RetryMin = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Second
	}

	// Long polling holds the request open for UpdatesTimeout seconds.
	client := &http.Client{Timeout: c.RequestTimeout + time.Duration(c.UpdatesTimeout)*time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, c.APIEndpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Infof("Authorized on account %s", bot.Self.UserName)

	return &Bot{
		Bot:    bot,
		Config: c,
	}, nil
}

// Send delivers text to the configured chat and returns the message id.
func (b *Bot) Send(ctx context.Context, text, parseMode string) (int, error) {
	return b.SendMessage(ctx, Message{ChatID: b.Config.ChatID, Text: text, ParseMode: parseMode})
}

// SendMessage sends a telegram message, retrying transient failures.
func (b *Bot) SendMessage(ctx context.Context, m Message) (int, error) {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = m.ParseMode

	id, err := b.send(ctx, msg)
	b.Config.Metrics.Notification(err == nil)
	return id, err
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (int, error) {
	retry := &backoff.Backoff{
		Min:    b.Config.RetryMin,
		Max:    b.Config.RetryMax,
		Factor: 2,
	}

	var lastErr error
	attempt := 0
	for attempt < b.Config.SendAttempts {
		attempt++
		sent, err := b.Bot.Send(c)
		if err == nil {
			return sent.MessageID, nil
		}
		lastErr = err
		if permanent(err) {
			break
		}

		log.WithField("attempt", attempt).Warnf("Failed to send message: %v", err)
		if attempt == b.Config.SendAttempts {
			break
		}

		wait := retry.Duration()
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}

		select {
		case <-ctx.Done():
			return 0, &DeliveryError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
	return 0, &DeliveryError{Attempts: attempt, Err: lastErr}
}

// permanent reports errors that a retry cannot fix, such as a malformed
// message or a chat the bot was removed from.
func permanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusUnauthorized ||
		apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound
}

// SetCommands publishes the command menu shown by Telegram clients.
func (b *Bot) SetCommands(items []commands.MenuItem) error {
	botCommands := make([]tgbotapi.BotCommand, 0, len(items))
	for _, item := range items {
		botCommands = append(botCommands, tgbotapi.BotCommand{Command: item.Command, Description: item.Description})
	}
	if _, err := b.Bot.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		return errors.Wrap(err, "could not set bot commands")
	}
	return nil
}

// Listen polls for updates and dispatches them to handler until ctx is done.
func (b *Bot) Listen(ctx context.Context, handler CommandHandler) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	updates := b.Bot.GetUpdatesChan(updatesConfig)

	for {
		select {
		case <-ctx.Done():
			b.Bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, handler, update)
		}
	}
}

// HandleUpdate answers a single update. Messages from chats other than the
// configured one are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, handler CommandHandler, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	if u.Message == nil || !u.Message.IsCommand() {
		log.Debug("Received non-message or non-command")
		return
	}
	if u.Message.Chat == nil {
		return
	}
	if u.Message.Chat.ID != b.Config.ChatID {
		log.WithField("chat_id", u.Message.Chat.ID).Warn("Ignoring command from unknown chat")
		return
	}

	log.Debugf("received command: %s", u.Message.Command())
	reply := handler.Handle(ctx, u.Message.Command(), u.Message.CommandArguments())
	b.Config.Metrics.CommandProcessed()

	if reply.Photo != nil {
		photo := tgbotapi.NewPhoto(u.Message.Chat.ID, tgbotapi.FileBytes{
			Name:  "chart.png",
			Bytes: reply.Photo,
		})
		photo.Caption = reply.Text
		photo.ParseMode = reply.ParseMode
		photo.ReplyToMessageID = u.Message.MessageID
		if _, err := b.send(ctx, photo); err != nil {
			log.Errorf("error sending chart: %v", err)
		}
		return
	}

	if reply.Text == "" {
		return
	}

	_, err := b.SendMessage(ctx, Message{
		ChatID:    u.Message.Chat.ID,
		MessageID: u.Message.MessageID,
		Text:      reply.Text,
		ParseMode: reply.ParseMode,
	})
	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	}
}
