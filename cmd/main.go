package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crypto-alert-bot/config"
	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/commands"
	"crypto-alert-bot/internal/database"
	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/telegram"
	"crypto-alert-bot/lib/translation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const metricsSaveInterval = 5 * time.Minute

var rootCmd = &cobra.Command{
	Use:          "crypto-alert-bot",
	Short:        "Telegram bot that watches crypto prices and fires alerts",
	SilenceUsage: true,
	RunE:         runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot, the alert scheduler and the metrics endpoint",
	RunE:  runBot,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every active alert once and exit",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(runCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting crypto alert bot...")
}

// app holds the long lived components shared by the commands.
type app struct {
	settings *config.Settings
	store    *database.Store
	metrics  *metrics.Metrics
	source   price.Source
	bot      *telegram.Bot
	engine   *alert.Engine
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(settings.Debug)
	translation.Configure("locales", settings.Lang)

	store, err := database.Open(settings.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	m := metrics.New()
	m.Load(ctx, store)

	source, err := price.NewSource(settings.PriceSource, price.Options{
		Timeout:    10 * time.Second,
		APIKey:     settings.APIProKey,
		QuoteAsset: settings.BinanceQuoteAsset,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          settings.BotToken,
		ChatID:         settings.ChatID,
		Debug:          settings.Debug,
		UpdatesTimeout: 60,
		Metrics:        m,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := alert.NewEngine(store, source, bot, alert.Options{
		Interval:         settings.CheckInterval,
		InitialDelay:     5 * time.Second,
		Cooldown:         settings.Cooldown,
		Debug:            settings.Debug,
		ParseMode:        settings.ParseMode,
		History:          store,
		HistoryRetention: settings.HistoryRetention,
		Metrics:          m,
	})

	log.WithFields(log.Fields{
		"source":   source.Name(),
		"interval": settings.CheckInterval,
		"cooldown": settings.Cooldown,
	}).Info("Configuration loaded")

	return &app{settings: settings, store: store, metrics: m, source: source, bot: bot, engine: engine}, nil
}

func (a *app) close() {
	a.metrics.Save(context.Background(), a.store)
	log.Info("Metrics saved, shutting down...")
	if err := a.store.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		log.Errorf("Failed to start: %v", err)
		return err
	}
	defer a.close()

	if err := a.bot.SetCommands(commands.Menu()); err != nil {
		log.Warnf("Failed to set bot commands: %v", err)
	}

	handler := commands.NewHandler(a.store, a.source, a.engine, a.bot, commands.Config{
		MaxAlertsPerToken: a.settings.MaxAlertsPerToken,
		MaxAlertsPerUser:  a.settings.MaxAlertsPerUser,
		ParseMode:         a.settings.ParseMode,
		StartedAt:         time.Now(),
	})

	var wg sync.WaitGroup
	engineDone := a.engine.Start(ctx)
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.bot.Listen(ctx, handler)
	}()
	go func() {
		defer wg.Done()
		saveMetricsPeriodically(ctx, a.metrics, a.store)
	}()

	// The store is closed by the deferred a.close, so every goroutine that
	// uses it has to be gone first.
	wait := func() {
		stop()
		<-engineDone
		wg.Wait()
	}

	if a.settings.MetricsPort == 0 {
		<-ctx.Done()
		wait()
		return nil
	}
	err = a.metrics.Serve(ctx, a.settings.MetricsPort)
	wait()
	if err != nil {
		return errors.Wrap(err, "failed to start metrics and health server")
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.engine.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d alerts, %d tokens, %d triggered, %d failed quotes\n",
		report.Alerts, len(report.Tokens), len(report.Triggers), len(report.Failed))
	return nil
}

func saveMetricsPeriodically(ctx context.Context, m *metrics.Metrics, store metrics.Store) {
	ticker := time.NewTicker(metricsSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Save(ctx, store)
		}
	}
}
