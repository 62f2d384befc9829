package alert

import (
	"fmt"
	"strings"

	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"
)

func directionText(t types.AlertType) string {
	if t == types.Below {
		return translation.Translate("below")
	}
	return translation.Translate("above")
}

// triggerReportText composes the single message sent for a tick.
func triggerReportText(mode string, triggers []types.Trigger) string {
	var b strings.Builder
	b.WriteString("🚨 ")
	b.WriteString(helpers.Bold(mode, helpers.Escape(mode, translation.Translate("Price alerts triggered"))))
	b.WriteString("\n")

	for _, t := range triggers {
		b.WriteString("\n")
		b.WriteString(helpers.Escape(mode, fmt.Sprintf("#%d ", t.AlertID)))
		b.WriteString(helpers.Bold(mode, helpers.Escape(mode, t.TokenName)))
		b.WriteString(helpers.Escape(mode, fmt.Sprintf(" %s %s", directionText(t.AlertType), t.TargetPrice.String())))
		b.WriteString("\n")
		b.WriteString(helpers.Escape(mode, translation.Translate("Current price: %s", t.CurrentPrice.String())))
		b.WriteString("\n")
	}
	return b.String()
}

func quoteWarningText(mode, token string, err error) string {
	return "⚠️ " + helpers.Escape(mode, translation.Translate("Could not get a price for %s: %v", token, err))
}

func noActiveAlertsText(mode string) string {
	return "🔔 " + helpers.Escape(mode, translation.Translate("Scheduled check: no active alerts"))
}

func nothingTriggeredText(mode string, r Report) string {
	return "🔔 " + helpers.Escape(mode, translation.Translate("Scheduled check: %d alerts on %d tokens, nothing triggered",
		r.Alerts, len(r.Tokens)))
}
