package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "crypto_alert"
	subsystem = "bot"
)

// Store persists metric values across restarts.
type Store interface {
	SaveMetric(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetric(ctx context.Context, metricName, labelKey, labelValue string) (float64, error)
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

// Metrics holds the bot's prometheus collectors. All methods accept a nil
// receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry
	mu       sync.Mutex

	Ticks                prometheus.Counter
	TickErrors           prometheus.Counter
	Triggers             prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
	CommandsProcessed    prometheus.Counter
	QuoteFailures        *prometheus.CounterVec
	ActiveAlerts         prometheus.Gauge
	TickDuration         prometheus.Histogram
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry:             prometheus.NewRegistry(),
		Ticks:                newCounter("ticks_total", "The total number of alert evaluation ticks"),
		TickErrors:           newCounter("tick_errors_total", "The total number of ticks aborted by a storage error"),
		Triggers:             newCounter("triggers_total", "The total number of triggered alerts"),
		NotificationsSent:    newCounter("notifications_sent_total", "The total number of notifications delivered"),
		NotificationFailures: newCounter("notification_failures_total", "The total number of notifications dropped after retries"),
		CommandsProcessed:    newCounter("commands_processed_total", "The total number of processed commands"),
		QuoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quote_failures_total",
			Help:      "The total number of failed price quotes per source",
		}, []string{"source"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_alerts",
			Help:      "The number of active alerts seen by the last tick",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of alert evaluation ticks",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.Ticks, m.TickErrors, m.Triggers, m.NotificationsSent, m.NotificationFailures,
		m.CommandsProcessed, m.QuoteFailures, m.ActiveAlerts, m.TickDuration,
	)
	return m
}

// ObserveTick records one finished tick.
func (m *Metrics) ObserveTick(d time.Duration, activeAlerts, triggers int, failed bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	if failed {
		m.TickErrors.Inc()
		return
	}
	m.ActiveAlerts.Set(float64(activeAlerts))
	m.Triggers.Add(float64(triggers))
}

// QuoteFailed counts a failed quote for source.
func (m *Metrics) QuoteFailed(source string) {
	if m == nil {
		return
	}
	m.QuoteFailures.WithLabelValues(source).Inc()
}

// Notification counts a delivered or dropped notification.
func (m *Metrics) Notification(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.NotificationsSent.Inc()
	} else {
		m.NotificationFailures.Inc()
	}
}

// CommandProcessed counts a handled chat command.
func (m *Metrics) CommandProcessed() {
	if m == nil {
		return
	}
	m.CommandsProcessed.Inc()
}

func (m *Metrics) counters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"ticks_total":                 m.Ticks,
		"tick_errors_total":           m.TickErrors,
		"triggers_total":              m.Triggers,
		"notifications_sent_total":    m.NotificationsSent,
		"notification_failures_total": m.NotificationFailures,
		"commands_processed_total":    m.CommandsProcessed,
	}
}

// Load restores counter totals saved by a previous run.
func (m *Metrics) Load(ctx context.Context, store Store) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, counter := range m.counters() {
		value, err := store.GetMetric(ctx, name, "", "")
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}

	labeled, err := store.GetMetricsWithLabels(ctx, "quote_failures_total")
	if err != nil {
		log.Errorf("Failed to load metric quote_failures_total: %v", err)
	}
	for _, values := range labeled {
		for source, value := range values {
			m.QuoteFailures.WithLabelValues(source).Add(value)
		}
	}

	log.Info("Metrics loaded from database.")
}

// Save writes counter totals to store.
func (m *Metrics) Save(ctx context.Context, store Store) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, counter := range m.counters() {
		if err := store.SaveMetric(ctx, name, "", "", GetMetricValue(counter)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}

	metricChan := make(chan prometheus.Metric, 1)
	go func() {
		m.QuoteFailures.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read quote_failures_total metric: %v", err)
			continue
		}
		var source string
		for _, label := range metricProto.Label {
			if label.GetName() == "source" {
				source = label.GetValue()
			}
		}
		if err := store.SaveMetric(ctx, "quote_failures_total", "source", source, metricProto.Counter.GetValue()); err != nil {
			log.Errorf("Failed to save metric quote_failures_total: %v", err)
		}
	}

	log.Debug("Metrics saved to database.")
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
