package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the catalog for lang from dir. Message ids are the English
// texts, so an unknown language falls back to English.
func Configure(dir, lang string) {
	lang = strings.ToLower(lang)
	if i := strings.IndexAny(lang, "_.-"); i > 0 {
		lang = lang[:i]
	}
	gotext.Configure(dir, lang, "default")
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
