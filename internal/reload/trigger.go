package reload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/registry"
)

// Reloader is the reload operation the trigger drives
type Reloader interface {
	Reload(ctx context.Context) (*registry.Result, error)
}

// Trigger drives reloads from debounced change signals and from manual requests
type Trigger struct {
	ctx         context.Context
	reloader    Reloader
	debouncer   *Debouncer
	afterReload func(ctx context.Context, res *registry.Result)
	clock       clock.WithDelayedExecution
	window      time.Duration
}

// TriggerOption configures a Trigger
type TriggerOption func(*Trigger)

// WithQuietWindow sets the debounce window
func WithQuietWindow(d time.Duration) TriggerOption {
	return func(t *Trigger) { t.window = d }
}

// WithClock injects the clock driving the debounce timer
func WithClock(c clock.WithDelayedExecution) TriggerOption {
	return func(t *Trigger) { t.clock = c }
}

// WithAfterReload registers a follow-up run after every successful debounced reload
func WithAfterReload(fn func(ctx context.Context, res *registry.Result)) TriggerOption {
	return func(t *Trigger) { t.afterReload = fn }
}

// NewTrigger creates a Trigger whose debounced reloads run under ctx
func NewTrigger(ctx context.Context, reloader Reloader, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		ctx:      ctx,
		reloader: reloader,
		window:   DefaultQuietWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.debouncer = NewDebouncer(t.clock, t.window, t.debouncedReload)
	return t
}

// Notify records a change signal; a reload follows once the quiet window passes
func (t *Trigger) Notify() {
	t.debouncer.Notify()
}

// ReloadNow bypasses the debounce window. It is still subject to the registry's
// concurrency guard and may return a skipped result.
func (t *Trigger) ReloadNow(ctx context.Context) (*registry.Result, error) {
	return t.reloader.Reload(ctx)
}

// Stop cancels any pending debounced reload
func (t *Trigger) Stop() {
	t.debouncer.Stop()
}

func (t *Trigger) debouncedReload() {
	if t.ctx.Err() != nil {
		return
	}
	slog.InfoContext(t.ctx, "Change burst settled, reloading endpoints")
	res, err := t.reloader.Reload(t.ctx)
	switch {
	case errors.Is(err, registry.ErrReloadInProgress):
		slog.InfoContext(t.ctx, "Debounced reload skipped, another reload is in progress")
		return
	case err != nil:
		slog.ErrorContext(t.ctx, "Debounced reload failed", "error", err)
		return
	}
	if t.afterReload != nil {
		t.afterReload(t.ctx, res)
	}
}
