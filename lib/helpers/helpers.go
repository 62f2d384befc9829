package helpers

import (
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Telegram parse modes. An empty mode sends text untouched.
const (
	ModePlain      = ""
	ModeHTML       = "HTML"
	ModeMarkdownV2 = "MarkdownV2"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// Escape makes text safe to embed in a message sent with the given mode.
func Escape(mode, text string) string {
	switch mode {
	case ModeHTML:
		return html.EscapeString(text)
	case ModeMarkdownV2:
		return EscapeMarkdownV2(text)
	}
	return text
}

// Bold wraps already escaped text in the bold markup of mode.
func Bold(mode, text string) string {
	switch mode {
	case ModeHTML:
		return "<b>" + text + "</b>"
	case ModeMarkdownV2:
		return "*" + text + "*"
	}
	return text
}

// Code wraps already escaped text in the monospace markup of mode.
func Code(mode, text string) string {
	switch mode {
	case ModeHTML:
		return "<code>" + text + "</code>"
	case ModeMarkdownV2:
		return "`" + text + "`"
	}
	return text
}

// FormatPriceUS renders a price with thousands separators and a precision
// that depends on its magnitude.
func FormatPriceUS(price decimal.Decimal) string {
	decimals := int32(6)

	if price.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		decimals = 0
	} else if price.GreaterThan(decimal.RequireFromString("1.2")) {
		decimals = 2
	} else if price.LessThan(decimal.RequireFromString("0.00001")) {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	f, _ := price.Round(decimals).Float64()
	return p.Sprintf("%.*f", int(decimals), f)
}

func FormatDate(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
