// Package watch arms the two wake-up sources the queue tailer and
// reconciler rely on: filesystem change notifications and a periodic
// fallback tick.
//
// Start's control shape — a ticker, a select over the ticker channel
// plus an external context and an internal cancel context, a registered
// callback fired on each qualifying event — follows
// johnjansen-torua's internal/coordinator/health_monitor.go Start almost
// line for line; SetOnUnhealthy there becomes SetOnWake here, and HTTP
// polling of node addresses becomes fsnotify events on local paths.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

const defaultTickInterval = 30 * time.Second
const defaultDebounce = 750 * time.Millisecond

// Watcher combines fsnotify events on a fixed set of paths with a
// periodic tick; either source wakes the registered callback. The tick
// is the authoritative fallback when notifications are unavailable or
// miss events (spec §4.10).
type Watcher struct {
	log          logr.Logger
	paths        []string
	tickInterval time.Duration
	debounce     time.Duration

	mu     sync.Mutex
	onWake func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Watcher at construction.
type Option func(*Watcher)

// WithTickInterval overrides the default 30s fallback tick.
func WithTickInterval(d time.Duration) Option {
	return func(w *Watcher) { w.tickInterval = d }
}

// WithDebounce overrides the default ~750ms event coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New returns a Watcher armed to notify on changes under any of paths.
func New(log logr.Logger, paths []string, opts ...Option) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		log:          log,
		paths:        paths,
		tickInterval: defaultTickInterval,
		debounce:     defaultDebounce,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetOnWake registers the callback invoked whenever either wake source
// fires. Must be called before Start.
func (w *Watcher) SetOnWake(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onWake = fn
}

// Start arms the fsnotify watcher and ticker and blocks until ctx (or
// the Watcher's internal context) is cancelled. Notification bursts are
// debounced into a single wake.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	defer w.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range w.paths {
		if err := watcher.Add(p); err != nil {
			w.log.Info("watch: failed to arm path, falling back to tick only", "path", p, "error", err.Error())
		}
	}

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	fire := func() {
		w.mu.Lock()
		fn := w.onWake
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			w.log.V(1).Info("watch: fs event", "path", event.Name, "op", event.Op.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			w.log.Error(err, "watch: fsnotify error")

		case <-ticker.C:
			fire()

		case <-ctx.Done():
			return nil
		case <-w.ctx.Done():
			return nil
		}
	}
}

// Stop cancels the watcher's internal context and waits for Start to
// return.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}
