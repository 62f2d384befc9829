package alert

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Run drives ticks every Interval until ctx is done. Ticks never overlap:
// when a tick overruns the interval the next one starts as soon as it ends.
func (e *Engine) Run(ctx context.Context) {
	log.Infof("🚀 Alert service started, checking every %s", e.opts.Interval)

	if e.opts.InitialDelay > 0 {
		timer := time.NewTimer(e.opts.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		e.tick(ctx)

		select {
		case <-ctx.Done():
			log.Info("Alert service stopped")
			return
		case <-ticker.C:
		}
	}
}

// Start runs the scheduler in its own goroutine. The returned channel is
// closed once Run has returned, after any in flight tick has finished.
func (e *Engine) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	return done
}

func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in alert checker: %v", r)
		}
	}()

	if _, err := e.RunOnce(ctx); err != nil {
		log.Errorf("Alert check aborted: %v", err)
	}
}
