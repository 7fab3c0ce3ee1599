// Package watch re-checks a repository whenever its directory settles after a
// burst of changes, and periodically to notice remote changes.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openmined/bucketsync/internal/utils"
	"github.com/rjeczalik/notify"
)

const (
	defaultDebounce = 500 * time.Millisecond
	defaultInterval = 5 * time.Minute
	eventBufferSize = 256
)

// CheckFunc runs one reconciliation check.
type CheckFunc func(ctx context.Context) error

// FilterFunc returns true for repository-relative paths whose changes should not
// trigger a check.
type FilterFunc func(rel string) bool

type Watcher struct {
	dir      string
	check    CheckFunc
	filter   FilterFunc
	debounce time.Duration
	interval time.Duration
}

type Option func(*Watcher)

// WithDebounce sets how long the directory must stay quiet before a check runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInterval sets the periodic check interval. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

func WithFilter(fn FilterFunc) Option {
	return func(w *Watcher) {
		w.filter = fn
	}
}

func New(dir string, check CheckFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		check:    check,
		debounce: defaultDebounce,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run checks once, then watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	dir, err := filepath.EvalSymlinks(w.dir)
	if err != nil {
		return err
	}
	w.dir = dir

	raw := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(dir, "..."), raw, notify.Create, notify.Remove, notify.Write, notify.Rename); err != nil {
		return err
	}
	defer notify.Stop(raw)

	slog.Info("watch start", "dir", dir, "debounce", w.debounce, "interval", w.interval)
	defer slog.Info("watch stopped", "dir", dir)

	return w.loop(ctx, raw)
}

func (w *Watcher) loop(ctx context.Context, events <-chan notify.EventInfo) error {
	w.runCheck(ctx, "start")

	settle := time.NewTimer(w.debounce)
	settle.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			settle.Stop()
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Path()) {
				continue
			}
			slog.Debug("watch event", "event", ev.Event(), "path", ev.Path())
			// every event pushes the check back until the burst is over
			settle.Reset(w.debounce)

		case <-settle.C:
			w.runCheck(ctx, "change")

		case <-tick:
			w.runCheck(ctx, "interval")
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := utils.RelKey(w.dir, path)
	if err != nil || rel == "" {
		return true
	}
	return w.filter != nil && w.filter(rel)
}

func (w *Watcher) runCheck(ctx context.Context, reason string) {
	err := w.check(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	default:
		slog.Warn("watch check failed", "reason", reason, "error", err)
	}
}
