package commands

import (
	"context"
	"strings"
	"time"

	"crypto-alert-bot/internal/chart"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/translation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) price(ctx context.Context, args string) string {
	token := types.CanonicalToken(firstField(args))
	if token == "" {
		return h.errorText(translation.Translate("Usage: /price <token>"))
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.QuoteTimeout)
	defer cancel()

	quote, err := h.source.GetPrice(ctx, token)
	if err != nil {
		if errors.Is(err, price.ErrNotFound) {
			return h.errorText(translation.Translate("No price found for %s.", token))
		}
		log.WithFields(log.Fields{"token": token, "source": h.source.Name()}).Warnf("price command failed: %v", err)
		return h.errorText(translation.Translate("Could not get a price for %s: %v", token, err))
	}

	return "💰 " + h.bold(token) + " " + h.escape(formatUSD(quote.PriceUSD)) + "\n" +
		h.escape(translation.Translate("Source: %s", h.source.Name()))
}

func (h *Handler) chart(ctx context.Context, args string) Reply {
	token := types.CanonicalToken(firstField(args))
	if token == "" {
		return h.reply(h.errorText(translation.Translate("Usage: /chart <token>")))
	}

	points, err := h.store.GetPriceHistory(ctx, token, time.Now().Add(-h.cfg.ChartWindow))
	if err != nil {
		return h.reply(h.storageFailure("load price history", err))
	}
	if len(points) < 2 {
		return h.reply(h.escape(translation.Translate("Not enough price history for %s yet.", token)))
	}

	png, err := chart.Render(token+" / USD", points)
	if err != nil {
		log.WithField("token", token).Errorf("error rendering chart: %v", err)
		return h.reply(h.errorText(translation.Translate("Could not draw the chart for %s.", token)))
	}

	last := points[len(points)-1]
	return Reply{
		Text:      h.bold(token) + " " + h.escape(formatUSD(last.Price)),
		ParseMode: h.cfg.ParseMode,
		Photo:     png,
	}
}

func firstField(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
