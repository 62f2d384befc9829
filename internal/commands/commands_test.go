package commands_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/commands"
	"crypto-alert-bot/internal/database"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	prices map[string]string
	err    error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) GetPrice(_ context.Context, symbol string) (types.PriceQuote, error) {
	if s.err != nil {
		return types.PriceQuote{}, s.err
	}
	p, ok := s.prices[symbol]
	if !ok {
		return types.PriceQuote{}, errors.Wrapf(price.ErrNotFound, "symbol %s", symbol)
	}
	return types.PriceQuote{Symbol: symbol, PriceUSD: decimal.RequireFromString(p)}, nil
}

type stubChecker struct {
	calls  int
	report alert.Report
	err    error
}

func (c *stubChecker) RunOnce(context.Context) (alert.Report, error) {
	c.calls++
	return c.report, c.err
}

type stubNotifier struct {
	sent      []string
	parseMode string
	err       error
}

func (n *stubNotifier) Send(_ context.Context, text, parseMode string) (int, error) {
	if n.err != nil {
		return 0, n.err
	}
	n.sent = append(n.sent, text)
	n.parseMode = parseMode
	return len(n.sent), nil
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newHandler(t *testing.T, cfg commands.Config) (*commands.Handler, *database.Store, *stubChecker) {
	t.Helper()
	store := newTestStore(t)
	checker := &stubChecker{}
	source := &stubSource{prices: map[string]string{"BTC": "51000", "ETH": "2500.5"}}
	return commands.NewHandler(store, source, checker, &stubNotifier{}, cfg), store, checker
}

func TestHandle_Ping(t *testing.T) {
	h, _, _ := newHandler(t, commands.Config{})
	assert.Equal(t, "pong", h.Handle(context.Background(), "ping", "").Text)
}

func TestHandle_AlertCreates(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	reply := h.Handle(ctx, "alert", "btc above 50000")
	assert.Contains(t, reply.Text, "Alert created")
	assert.Contains(t, reply.Text, "BTC")
	assert.Contains(t, reply.Text, "50000")

	alerts, err := store.GetAllAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTC", alerts[0].TokenName)
	assert.Equal(t, types.Above, alerts[0].AlertType)
	assert.True(t, alerts[0].TargetPrice.Equal(decimal.NewFromInt(50000)))
}

func TestHandle_AlertWithContract(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	reply := h.Handle(ctx, "alert", "PEPE above 0.000001 0x6982508145454ce325ddbe47a25d4ec3d2311933")
	assert.Contains(t, reply.Text, "0x6982508145454ce325ddbe47a25d4ec3d2311933")

	alerts, _ := store.GetAllAlerts(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, "0.000001", alerts[0].TargetPrice.String())
	assert.Equal(t, "0x6982508145454ce325ddbe47a25d4ec3d2311933", alerts[0].TokenContract)
}

func TestHandle_AlertRejectsBadInput(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	tests := []struct {
		args string
		want string
	}{
		{"", "Usage"},
		{"BTC above", "Usage"},
		{"BTC sideways 100", "'above' or 'below'"},
		{"BTC above abc", "greater than zero"},
		{"BTC above -5", "greater than zero"},
		{"BTC below 0", "greater than zero"},
	}
	for _, tt := range tests {
		reply := h.Handle(ctx, "alert", tt.args)
		assert.Contains(t, reply.Text, tt.want, tt.args)
	}

	alerts, _ := store.GetAllAlerts(ctx)
	assert.Empty(t, alerts)
}

func TestHandle_AlertLimits(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{MaxAlertsPerToken: 2, MaxAlertsPerUser: 3})
	ctx := context.Background()

	h.Handle(ctx, "alert", "BTC above 1")
	h.Handle(ctx, "alert", "BTC above 2")
	reply := h.Handle(ctx, "alert", "BTC above 3")
	assert.Contains(t, reply.Text, "2 active alerts for BTC")

	h.Handle(ctx, "alert", "ETH above 1")
	reply = h.Handle(ctx, "alert", "SOL above 1")
	assert.Contains(t, reply.Text, "3 active alerts")

	n, _ := store.CountActiveAlerts(ctx)
	assert.Equal(t, 3, n)

	_, err := store.SetAlertActive(ctx, 1, false)
	require.NoError(t, err)
	reply = h.Handle(ctx, "alert", "SOL above 1")
	assert.Contains(t, reply.Text, "Alert created", "paused alerts do not count")

	reply = h.Handle(ctx, "resume", "1")
	assert.Contains(t, reply.Text, "3 active alerts")
	a, err := store.GetAlert(ctx, 1)
	require.NoError(t, err)
	assert.False(t, a.IsActive, "resume must not push the user past the limit")
}

func TestHandle_ResumeRespectsTokenLimit(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{MaxAlertsPerToken: 1})
	ctx := context.Background()

	assert.Contains(t, h.Handle(ctx, "alert", "BTC above 1").Text, "Alert created")
	assert.Contains(t, h.Handle(ctx, "pause", "1").Text, "paused")
	assert.Contains(t, h.Handle(ctx, "alert", "BTC above 2").Text, "Alert created")

	reply := h.Handle(ctx, "resume", "1")
	assert.Contains(t, reply.Text, "1 active alerts for BTC")
	n, err := store.CountActiveAlertsByToken(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Resuming an alert that is already active does not hit the limit.
	assert.Contains(t, h.Handle(ctx, "resume", "2").Text, "resumed")

	assert.Contains(t, h.Handle(ctx, "remove", "2").Text, "removed")
	assert.Contains(t, h.Handle(ctx, "resume", "1").Text, "resumed")
	assert.Contains(t, h.Handle(ctx, "resume", "9").Text, "Alert #9 not found")
}

func TestHandle_List(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	assert.Contains(t, h.Handle(ctx, "list", "").Text, "No alerts scheduled")

	btc, _ := store.AddAlert(ctx, "BTC", types.Above, decimal.NewFromInt(50000), "")
	_, _ = store.AddAlert(ctx, "ETH", types.Below, decimal.NewFromInt(2000), "")
	_, _ = store.TriggerAlert(ctx, btc)

	for _, command := range []string{"list", "scheduled"} {
		text := h.Handle(ctx, command, "").Text
		assert.Contains(t, text, "#1 above 50000")
		assert.Contains(t, text, "#2 below 2000")
		assert.Contains(t, text, "triggered 1 times")
		assert.Less(t, bytes.Index([]byte(text), []byte("BTC")), bytes.Index([]byte(text), []byte("ETH")))
	}
}

func TestHandle_RemovePauseResume(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()
	id, _ := store.AddAlert(ctx, "BTC", types.Above, decimal.NewFromInt(1), "")

	assert.Contains(t, h.Handle(ctx, "pause", "1").Text, "paused")
	a, _ := store.GetAlert(ctx, id)
	assert.False(t, a.IsActive)

	assert.Contains(t, h.Handle(ctx, "resume", "#1").Text, "resumed")
	a, _ = store.GetAlert(ctx, id)
	assert.True(t, a.IsActive)

	assert.Contains(t, h.Handle(ctx, "remove", "1").Text, "removed")
	_, err := store.GetAlert(ctx, id)
	assert.True(t, errors.Is(err, database.ErrAlertNotFound))

	assert.Contains(t, h.Handle(ctx, "remove", "1").Text, "not found")
	assert.Contains(t, h.Handle(ctx, "pause", "99").Text, "not found")
	assert.Contains(t, h.Handle(ctx, "remove", "abc").Text, "Usage")
}

func TestHandle_Price(t *testing.T) {
	h, _, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	reply := h.Handle(ctx, "price", "btc")
	assert.Contains(t, reply.Text, "BTC")
	assert.Contains(t, reply.Text, "$51,000")

	assert.Contains(t, h.Handle(ctx, "tokenprice", "XYZ").Text, "No price found for XYZ")
	assert.Contains(t, h.Handle(ctx, "price", "").Text, "Usage")
}

func TestHandle_PriceSourceError(t *testing.T) {
	store := newTestStore(t)
	source := &stubSource{err: &price.QuoteError{Source: "stub", Symbol: "BTC", Err: errors.New("timeout")}}
	h := commands.NewHandler(store, source, nil, nil, commands.Config{})

	assert.Contains(t, h.Handle(context.Background(), "price", "BTC").Text, "Could not get a price for BTC")
}

func TestHandle_Chart(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{})
	ctx := context.Background()

	reply := h.Handle(ctx, "chart", "BTC")
	assert.Nil(t, reply.Photo)
	assert.Contains(t, reply.Text, "Not enough price history")

	now := time.Now()
	for i, p := range []string{"50000", "50500", "51000"} {
		require.NoError(t, store.RecordPrice(ctx, "BTC", decimal.RequireFromString(p), now.Add(time.Duration(i-3)*time.Minute)))
	}

	reply = h.Handle(ctx, "chart", "btc")
	require.NotNil(t, reply.Photo)
	assert.True(t, bytes.HasPrefix(reply.Photo, []byte("\x89PNG")))
	assert.Contains(t, reply.Text, "51,000")
}

func TestHandle_Check(t *testing.T) {
	h, _, checker := newHandler(t, commands.Config{})
	checker.report = alert.Report{Alerts: 3, Tokens: []string{"BTC", "ETH"}}

	text := h.Handle(context.Background(), "check", "").Text
	assert.Equal(t, 1, checker.calls)
	assert.Contains(t, text, "3 alerts, 2 tokens, 0 triggered")

	checker.err = errors.New("database is locked")
	assert.Contains(t, h.Handle(context.Background(), "check", "").Text, "database is locked")
}

func TestHandle_Status(t *testing.T) {
	h, store, _ := newHandler(t, commands.Config{StartedAt: time.Now().Add(-time.Hour)})
	_, _ = store.AddAlert(context.Background(), "BTC", types.Above, decimal.NewFromInt(1), "")

	text := h.Handle(context.Background(), "status", "").Text
	assert.Contains(t, text, "Uptime: 1h0m")
	assert.Contains(t, text, "Go version")
	assert.Contains(t, text, "Active alerts: 1")
	assert.Contains(t, text, "Price source: stub")
}

func TestHandle_Report(t *testing.T) {
	store := newTestStore(t)
	source := &stubSource{prices: map[string]string{"BTC": "51000"}}
	notifier := &stubNotifier{}
	h := commands.NewHandler(store, source, nil, notifier, commands.Config{ParseMode: "HTML"})
	_, _ = store.AddAlert(context.Background(), "BTC", types.Above, decimal.NewFromInt(1), "")

	reply := h.Handle(context.Background(), "report", "")
	assert.Contains(t, reply.Text, "Detailed report sent")
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "HTML", notifier.parseMode)
	assert.Contains(t, notifier.sent[0], "<b>Detailed system report</b>")
	assert.Contains(t, notifier.sent[0], "<b>Operating system:</b>")
	assert.Contains(t, notifier.sent[0], "<b>Active alerts:</b> 1")
	assert.Contains(t, notifier.sent[0], "<b>Generated:</b>")

	notifier.err = errors.New("chat not found")
	reply = h.Handle(context.Background(), "report", "")
	assert.Contains(t, reply.Text, "Could not send the report: chat not found")
	assert.Len(t, notifier.sent, 1)

	h = commands.NewHandler(store, source, nil, nil, commands.Config{})
	assert.Contains(t, h.Handle(context.Background(), "report", "").Text, "Reports are not available")
}

func TestHandle_HelpAndUnknown(t *testing.T) {
	h, _, _ := newHandler(t, commands.Config{})

	help := h.Handle(context.Background(), "help", "").Text
	for _, item := range commands.Menu() {
		assert.Contains(t, help, "/"+item.Command)
	}
	assert.Contains(t, h.Handle(context.Background(), "bogus", "").Text, "Unknown command /bogus")
}

func TestHandle_HTMLEscaping(t *testing.T) {
	h, _, _ := newHandler(t, commands.Config{ParseMode: "HTML"})

	reply := h.Handle(context.Background(), "alert", "")
	assert.Equal(t, "HTML", reply.ParseMode)
	assert.Contains(t, reply.Text, "&lt;token&gt;")
	assert.Contains(t, reply.Text, "<b>")

	h.Handle(context.Background(), "alert", "BTC above 50000")
	list := h.Handle(context.Background(), "list", "").Text
	assert.Contains(t, list, "<code>#1</code> above 50000")
}
