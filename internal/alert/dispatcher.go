package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Dispatcher fans out alert events to matching webhook configurations.
// The configuration can be swapped at runtime by the config reloader.
type Dispatcher struct {
	configs atomic.Pointer[[]Config]
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// An empty list is valid; Dispatch is then a no-op until SetConfigs.
func NewDispatcher(configs []Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{logger: logger, ctx: ctx, cancel: cancel}
	d.SetConfigs(configs)
	return d
}

// SetConfigs replaces the webhook list for subsequent dispatches.
func (d *Dispatcher) SetConfigs(configs []Config) {
	cp := append([]Config(nil), configs...)
	d.configs.Store(&cp)
}

// Dispatch sends the event to all webhooks whose Events list matches
// event.Outcome or event.Basis. Sends run on goroutines and never block
// the caller; failures are logged. Events dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Debug("alert dropped after close", zap.String("turn_id", event.TurnID))
		return
	}

	for _, cfg := range *d.configs.Load() {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(d.ctx, cfg, event); err != nil {
				d.logger.Warn("alert webhook failed",
					zap.String("turn_id", event.TurnID),
					zap.String("format", cfg.Format),
					zap.Error(err))
			}
		}(cfg)
	}
}

// Wait blocks until in-flight sends finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Close stops accepting events and waits for in-flight sends. Sends still
// running after grace are cancelled, retry backoffs included.
func (d *Dispatcher) Close(grace time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		d.logger.Warn("cancelling alert webhooks still in flight", zap.Duration("grace", grace))
		d.cancel()
		<-done
	}
	d.cancel()
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Outcome || e == event.Basis {
			return true
		}
	}
	return false
}
