package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store is the part of the alert store the engine needs.
type Store interface {
	GetActiveAlerts(ctx context.Context) ([]types.Alert, error)
	TriggerAlert(ctx context.Context, id int64) (bool, error)
}

// Notifier delivers a message to the alert chat.
type Notifier interface {
	Send(ctx context.Context, text, parseMode string) (int, error)
}

// History records quoted prices. It is optional.
type History interface {
	RecordPrice(ctx context.Context, tokenName string, price decimal.Decimal, at time.Time) error
	PrunePriceHistory(ctx context.Context, before time.Time) (int64, error)
}

// Options are the engine policy knobs.
type Options struct {
	// Interval between ticks when running the scheduler.
	Interval time.Duration
	// InitialDelay before the first scheduled tick.
	InitialDelay time.Duration
	// Cooldown suppresses re-triggering an alert that fired less than
	// Cooldown ago. Zero re-arms alerts on every tick.
	Cooldown time.Duration
	// Debug sends "no active alerts" and "nothing triggered" notices.
	Debug bool
	// ParseMode is the Telegram formatting mode of composed messages.
	ParseMode string
	// QuoteTimeout bounds each price request.
	QuoteTimeout time.Duration
	// NotifyTimeout bounds each notification including retries.
	NotifyTimeout time.Duration
	// History, when set, receives every successful quote.
	History History
	// HistoryRetention is how long recorded prices are kept.
	HistoryRetention time.Duration
	Metrics          *metrics.Metrics
	// Now is the clock, time.Now by default.
	Now func() time.Time
}

// Engine evaluates active alerts against live prices. It keeps no state
// between ticks apart from the history pruning schedule.
type Engine struct {
	store    Store
	source   price.Source
	notifier Notifier
	opts     Options

	// mu serializes ticks so an alert is never evaluated by two at once.
	mu        sync.Mutex
	lastPrune time.Time
}

// Report summarizes one tick.
type Report struct {
	Alerts      int
	Tokens      []string
	Failed      map[string]error
	Triggers    []types.Trigger
	CoolingDown int
	Notified    bool
}

// NewEngine wires an engine to its collaborators.
func NewEngine(store Store, source price.Source, notifier Notifier, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = 0
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 10 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: store, source: source, notifier: notifier, opts: opts}
}

// RunOnce executes a single tick: fetch active alerts, group them by token,
// quote each token once, evaluate, mark triggered alerts and send one
// batched report. Only a failure to load the alerts is returned; per-token
// and per-alert failures are logged and skipped.
func (e *Engine) RunOnce(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.opts.Now()
	report := Report{Failed: map[string]error{}}

	log.Debug("🔄 Checking alerts...")

	alerts, err := e.store.GetActiveAlerts(ctx)
	if err != nil {
		log.Errorf("❌ Failed to fetch alerts from the database: %v", err)
		e.opts.Metrics.ObserveTick(time.Since(start), 0, 0, true)
		return report, errors.Wrap(err, "fetch active alerts")
	}
	report.Alerts = len(alerts)

	if len(alerts) == 0 {
		if e.opts.Debug {
			e.notify(ctx, noActiveAlertsText(e.opts.ParseMode))
		}
		e.pruneHistory(ctx, start)
		e.opts.Metrics.ObserveTick(time.Since(start), 0, 0, false)
		return report, nil
	}

	groups := lo.GroupBy(alerts, func(a types.Alert) string {
		return types.CanonicalToken(a.TokenName)
	})
	report.Tokens = lo.Keys(groups)
	sort.Strings(report.Tokens)

	for _, token := range report.Tokens {
		quote, err := e.quote(ctx, token)
		if err != nil {
			report.Failed[token] = err
			e.opts.Metrics.QuoteFailed(e.source.Name())
			log.WithFields(log.Fields{"token": token, "source": e.source.Name()}).
				Warnf("⚠️ No price data for %s: %v", token, err)
			e.notify(ctx, quoteWarningText(e.opts.ParseMode, token, err))
			continue
		}

		e.recordPrice(ctx, token, quote)

		for _, a := range groups[token] {
			triggered, cooling := e.evaluate(ctx, a, quote.PriceUSD, start)
			if cooling {
				report.CoolingDown++
			}
			if triggered {
				report.Triggers = append(report.Triggers, types.Trigger{
					AlertID:      a.ID,
					TokenName:    token,
					AlertType:    a.AlertType,
					TargetPrice:  a.TargetPrice,
					CurrentPrice: quote.PriceUSD,
				})
			}
		}
	}

	if len(report.Triggers) > 0 {
		report.Notified = e.notify(ctx, triggerReportText(e.opts.ParseMode, report.Triggers))
	} else if e.opts.Debug {
		e.notify(ctx, nothingTriggeredText(e.opts.ParseMode, report))
	}

	e.pruneHistory(ctx, start)
	e.opts.Metrics.ObserveTick(time.Since(start), report.Alerts, len(report.Triggers), false)

	log.Infof("✅ Alert check completed: %d alerts, %d tokens, %d triggered, %d failed quotes",
		report.Alerts, len(report.Tokens), len(report.Triggers), len(report.Failed))
	return report, nil
}

func (e *Engine) quote(ctx context.Context, token string) (types.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.QuoteTimeout)
	defer cancel()
	return e.source.GetPrice(ctx, token)
}

// evaluate checks one alert against the token price and marks it triggered.
func (e *Engine) evaluate(ctx context.Context, a types.Alert, current decimal.Decimal, now time.Time) (triggered, cooling bool) {
	logger := log.WithFields(log.Fields{"alert_id": a.ID, "token": a.TokenName})
	logger.Debugf("🔍 Checking alert | %s %s | current %s", a.AlertType, a.TargetPrice, current)

	if !a.Matches(current) {
		return false, false
	}
	if a.CoolingDown(now, e.opts.Cooldown) {
		logger.Debugf("Alert in cooldown since %s", a.LastTriggered.Format(time.RFC3339))
		return false, true
	}

	ok, err := e.store.TriggerAlert(ctx, a.ID)
	if err != nil {
		logger.Errorf("❌ Failed to mark alert as triggered: %v", err)
		return false, false
	}
	if !ok {
		logger.Warn("Alert disappeared before it could be marked as triggered")
		return false, false
	}
	logger.Infof("🚨 Alert triggered: %s %s %s, current %s", a.TokenName, a.AlertType, a.TargetPrice, current)
	return true, false
}

// notify sends text and reports whether it was delivered.
func (e *Engine) notify(ctx context.Context, text string) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.NotifyTimeout)
	defer cancel()

	if _, err := e.notifier.Send(ctx, text, e.opts.ParseMode); err != nil {
		log.Errorf("❌ Failed to send notification: %v", err)
		return false
	}
	return true
}

func (e *Engine) recordPrice(ctx context.Context, token string, quote types.PriceQuote) {
	if e.opts.History == nil {
		return
	}
	at := quote.FetchedAt
	if at.IsZero() {
		at = e.opts.Now()
	}
	if err := e.opts.History.RecordPrice(ctx, token, quote.PriceUSD, at); err != nil {
		log.WithField("token", token).Errorf("Failed to record price: %v", err)
	}
}

// pruneHistory drops old price samples at most once a day.
func (e *Engine) pruneHistory(ctx context.Context, now time.Time) {
	if e.opts.History == nil || e.opts.HistoryRetention <= 0 {
		return
	}
	if !e.lastPrune.IsZero() && now.Sub(e.lastPrune) < 24*time.Hour {
		return
	}
	e.lastPrune = now

	n, err := e.opts.History.PrunePriceHistory(ctx, now.Add(-e.opts.HistoryRetention))
	if err != nil {
		log.Errorf("Failed to prune price history: %v", err)
		return
	}
	if n > 0 {
		log.Infof("Pruned %d price history rows", n)
	}
}
