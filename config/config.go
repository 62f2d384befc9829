package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const defaultConfigFile = "config/config.env"

var once sync.Once

// Settings is the typed runtime configuration.
type Settings struct {
	BotToken          string        `validate:"required"`
	ChatID            int64         `validate:"required"`
	CheckInterval     time.Duration `validate:"min=1s"`
	Cooldown          time.Duration `validate:"min=0s"`
	MaxAlertsPerToken int           `validate:"min=1"`
	MaxAlertsPerUser  int           `validate:"min=1"`
	PriceSource       string        `validate:"oneof=coinpaprika coingecko binance"`
	ParseMode         string        `validate:"omitempty,oneof=HTML MarkdownV2"`
	DatabasePath      string        `validate:"required"`
	MetricsPort       int           `validate:"min=0,max=65535"`
	BinanceQuoteAsset string        `validate:"required"`
	HistoryRetention  time.Duration `validate:"min=0s"`
	APIProKey         string
	Debug             bool
	Lang              string
}

// placeholders shipped in the example config file.
var placeholders = []string{"tu_token_del_bot_aqui", "tu_chat_id_aqui", "your_bot_token_here", "your_chat_id_here"}

// InitConfig loads the optional env file and registers keys and defaults.
func InitConfig() {
	once.Do(func() {
		file := os.Getenv("CONFIG_FILE")
		if file == "" {
			file = defaultConfigFile
		}
		// Variables already in the environment win over the file.
		if err := godotenv.Load(file); err != nil {
			log.Debugf("config file %s not loaded: %v", file, err)
		}

		viper.AutomaticEnv()

		viper.BindEnv("bot_token", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("chat_id", "CHAT_ID", "TELEGRAM_CHAT_ID")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")
		viper.BindEnv("notification_cooldown", "NOTIFICATION_COOLDOWN")
		viper.BindEnv("max_alerts_per_token", "MAX_ALERTS_PER_TOKEN")
		viper.BindEnv("max_alerts_per_user", "MAX_ALERTS_PER_USER")
		viper.BindEnv("default_price_source", "DEFAULT_PRICE_SOURCE")
		viper.BindEnv("debug", "DEBUG_MODE", "DEBUG")
		viper.BindEnv("parse_mode", "PARSE_MODE")
		viper.BindEnv("database_path", "DATABASE_PATH")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("binance_quote_asset", "BINANCE_QUOTE_ASSET")
		viper.BindEnv("cleanup_days", "CLEANUP_DAYS")
		viper.BindEnv("lang", "LANG")

		viper.SetDefault("check_interval", 60)
		viper.SetDefault("notification_cooldown", 3600)
		viper.SetDefault("max_alerts_per_token", 5)
		viper.SetDefault("max_alerts_per_user", 10)
		viper.SetDefault("default_price_source", "coinpaprika")
		viper.SetDefault("debug", false)
		viper.SetDefault("parse_mode", "HTML")
		viper.SetDefault("database_path", "data/crypto_alerts.db")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("binance_quote_asset", "USDT")
		viper.SetDefault("cleanup_days", 7)
		viper.SetDefault("lang", "en")
	})
}

// Load reads and validates the configuration.
func Load() (*Settings, error) {
	InitConfig()

	for _, key := range []string{"bot_token", "chat_id"} {
		v := strings.TrimSpace(viper.GetString(key))
		for _, p := range placeholders {
			if strings.EqualFold(v, p) {
				return nil, errors.Errorf("%s still holds the placeholder %q, set a real value", strings.ToUpper(key), v)
			}
		}
	}

	chatRaw := strings.TrimSpace(viper.GetString("chat_id"))
	var chatID int64
	if chatRaw != "" {
		chatID = viper.GetInt64("chat_id")
		if chatID == 0 {
			return nil, errors.Errorf("CHAT_ID %q is not a number", chatRaw)
		}
	}

	s := &Settings{
		BotToken:          strings.TrimSpace(viper.GetString("bot_token")),
		ChatID:            chatID,
		CheckInterval:     time.Duration(viper.GetInt("check_interval")) * time.Second,
		Cooldown:          time.Duration(viper.GetInt("notification_cooldown")) * time.Second,
		MaxAlertsPerToken: viper.GetInt("max_alerts_per_token"),
		MaxAlertsPerUser:  viper.GetInt("max_alerts_per_user"),
		PriceSource:       strings.ToLower(strings.TrimSpace(viper.GetString("default_price_source"))),
		Debug:             viper.GetBool("debug"),
		ParseMode:         normalizeParseMode(viper.GetString("parse_mode")),
		DatabasePath:      viper.GetString("database_path"),
		MetricsPort:       viper.GetInt("metrics_port"),
		APIProKey:         viper.GetString("api_pro_key"),
		BinanceQuoteAsset: strings.ToUpper(viper.GetString("binance_quote_asset")),
		HistoryRetention:  time.Duration(viper.GetInt("cleanup_days")) * 24 * time.Hour,
		Lang:              viper.GetString("lang"),
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return s, nil
}

func normalizeParseMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "html":
		return "HTML"
	case "markdownv2", "markdown":
		return "MarkdownV2"
	case "", "none", "plain":
		return ""
	}
	return mode
}
