package alert_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls int32
}

func (s *countingStore) GetActiveAlerts(context.Context) ([]types.Alert, error) {
	atomic.AddInt32(&s.calls, 1)
	return nil, nil
}

func (s *countingStore) TriggerAlert(context.Context, int64) (bool, error) { return false, nil }

type panickingStore struct{ calls int32 }

func (s *panickingStore) GetActiveAlerts(context.Context) ([]types.Alert, error) {
	atomic.AddInt32(&s.calls, 1)
	panic("boom")
}

func (s *panickingStore) TriggerAlert(context.Context, int64) (bool, error) { return false, nil }

// blockingStore holds the first tick until release is closed, ignoring ctx.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) GetActiveAlerts(context.Context) ([]types.Alert, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil, nil
}

func (s *blockingStore) TriggerAlert(context.Context, int64) (bool, error) { return false, nil }

func TestEngine_RunTicksUntilCancelled(t *testing.T) {
	store := &countingStore{}
	engine := alert.NewEngine(store, newFakeSource(nil), &fakeNotifier{}, alert.Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&store.calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestEngine_RunWaitsInitialDelay(t *testing.T) {
	store := &countingStore{}
	engine := alert.NewEngine(store, newFakeSource(nil), &fakeNotifier{}, alert.Options{
		Interval:     10 * time.Millisecond,
		InitialDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	engine.Run(ctx)

	assert.Zero(t, atomic.LoadInt32(&store.calls))
}

func TestEngine_RunSurvivesPanickingTick(t *testing.T) {
	store := &panickingStore{}
	engine := alert.NewEngine(store, newFakeSource(nil), &fakeNotifier{}, alert.Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&store.calls) >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_StartDoneWaitsForTick(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	engine := alert.NewEngine(store, newFakeSource(nil), &fakeNotifier{}, alert.Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := engine.Start(ctx)

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not start")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("done closed while a tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
