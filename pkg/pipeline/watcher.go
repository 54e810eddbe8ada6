package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/logging"
)

// DefaultInterval is the time between scheduled cycles.
const DefaultInterval = 60 * time.Second

// Cycler runs one training cycle.
type Cycler interface {
	Cycle(ctx context.Context) (*Result, error)
}

// Ticker delivers scheduled cycle triggers.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Watcher retrains on a schedule, and optionally as soon as new data files
// appear. Cycles never overlap: triggers that arrive while a cycle runs are
// coalesced into at most one follow-up cycle.
type Watcher struct {
	cycler          Cycler
	interval        time.Duration
	newTicker       func(time.Duration) Ticker
	watchDir        string
	match           func(name string) bool
	continueOnError bool
	logger          *zap.Logger

	mu     sync.Mutex
	cycles int
	failed int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithInterval sets the time between scheduled cycles.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(newTicker func(time.Duration) Ticker) WatcherOption {
	return func(w *Watcher) {
		w.newTicker = newTicker
	}
}

// WithFileTrigger starts an extra cycle when a file in dir whose base name
// satisfies match is created or written.
func WithFileTrigger(dir string, match func(name string) bool) WatcherOption {
	return func(w *Watcher) {
		w.watchDir = dir
		w.match = match
	}
}

// WithContinueOnError logs failed cycles and keeps running instead of
// returning the first error.
func WithContinueOnError(v bool) WatcherOption {
	return func(w *Watcher) {
		w.continueOnError = v
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logging.OrNop(logger)
	}
}

// NewWatcher creates a watch loop around cycler.
func NewWatcher(cycler Cycler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		cycler:    cycler,
		interval:  DefaultInterval,
		newTicker: newTimeTicker,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes one cycle immediately and then one per trigger until ctx is
// cancelled, in which case it returns ctx.Err(). A failed cycle ends Run with
// its error unless continue-on-error is set.
func (w *Watcher) Run(ctx context.Context) error {
	trigger := make(chan struct{}, 1)

	if w.watchDir != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("file watcher: %v: %w", err, events.ErrResource)
		}
		if err := fw.Add(w.watchDir); err != nil {
			fw.Close()
			return fmt.Errorf("watch %s: %v: %w", w.watchDir, err, events.ErrIO)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.forward(fw, trigger)
		}()
		defer wg.Wait()
		defer fw.Close()
	}

	ticker := w.newTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watch loop started",
		zap.Duration("interval", w.interval),
		zap.String("watch_dir", w.watchDir),
	)

	if err := w.cycle(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch loop stopped", zap.Int("cycles", w.Cycles()))
			return ctx.Err()
		case <-ticker.C():
		case <-trigger:
			w.logger.Debug("cycle triggered by new data")
		}

		if err := w.cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycles returns the number of cycles run so far.
func (w *Watcher) Cycles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cycles
}

// Failed returns the number of cycles that returned an error.
func (w *Watcher) Failed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

func (w *Watcher) cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := w.cycler.Cycle(ctx)

	w.mu.Lock()
	w.cycles++
	if err != nil {
		w.failed++
	}
	w.mu.Unlock()

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	if w.continueOnError {
		w.logger.Error("cycle failed", zap.String("kind", events.Kind(err)), zap.Error(err))
		return nil
	}
	return fmt.Errorf("watch cycle: %w", err)
}

func (w *Watcher) forward(fw *fsnotify.Watcher, trigger chan<- struct{}) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if w.match != nil && !w.match(filepath.Base(ev.Name)) {
				continue
			}
			select {
			case trigger <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
