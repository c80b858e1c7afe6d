package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eduadmin/portal/internal/ports"
)

// Logouter is what the watchdog calls when the idle window elapses.
type Logouter interface {
	Logout(ctx context.Context)
}

// LogoutFunc adapts a function to Logouter.
type LogoutFunc func(ctx context.Context)

func (f LogoutFunc) Logout(ctx context.Context) { f(ctx) }

// Timer is the part of *time.Timer the watchdog uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via wrapAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func wrapAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// WatchdogOptions groups dependencies for ActivityWatchdog.
type WatchdogOptions struct {
	Target  Logouter
	Sources []ports.ActivitySource
	Logger  *slog.Logger
	// AfterFunc overrides the timer factory; tests use it to control time.
	AfterFunc AfterFunc
}

// ActivityWatchdog ends the session after a window with no user activity.
// Every activity signal restarts the full window.
type ActivityWatchdog struct {
	target    Logouter
	sources   []ports.ActivitySource
	logger    *slog.Logger
	afterFunc AfterFunc

	mu        sync.Mutex
	armed     bool
	threshold time.Duration
	// seq identifies the live timer; callbacks carrying an older value are ignored.
	seq    uint64
	timer  Timer
	unsubs []func()
}

// NewActivityWatchdog constructs a disarmed watchdog.
func NewActivityWatchdog(opts WatchdogOptions) *ActivityWatchdog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	af := opts.AfterFunc
	if af == nil {
		af = wrapAfterFunc
	}
	return &ActivityWatchdog{
		target:    opts.Target,
		sources:   opts.Sources,
		logger:    logger.With("component", "activity_watchdog"),
		afterFunc: af,
	}
}

// Arm starts (or restarts) the idle window and subscribes to the activity sources.
// A non-positive threshold disarms.
func (w *ActivityWatchdog) Arm(threshold time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarmLocked()
	if threshold <= 0 {
		return
	}
	w.armed = true
	w.threshold = threshold
	w.startTimerLocked()
	for _, src := range w.sources {
		w.unsubs = append(w.unsubs, src.Subscribe(w.onActivity))
	}
	w.logger.Debug("watchdog armed", "threshold", threshold)
}

// Disarm stops the timer and unsubscribes from all sources. Idempotent.
func (w *ActivityWatchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
}

// Armed reports whether a timer is live.
func (w *ActivityWatchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *ActivityWatchdog) onActivity(ports.ActivitySignal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return
	}
	w.startTimerLocked()
}

// startTimerLocked replaces the live timer. Callers hold mu.
func (w *ActivityWatchdog) startTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.seq++
	seq := w.seq
	w.timer = w.afterFunc(w.threshold, func() { w.expire(seq) })
}

func (w *ActivityWatchdog) expire(seq uint64) {
	w.mu.Lock()
	if !w.armed || seq != w.seq {
		w.mu.Unlock()
		return
	}
	threshold := w.threshold
	w.disarmLocked()
	w.mu.Unlock()

	w.logger.Info("idle timeout reached, ending session", "threshold", threshold)
	if w.target != nil {
		w.target.Logout(context.Background())
	}
}

// disarmLocked must be called with mu held.
func (w *ActivityWatchdog) disarmLocked() {
	w.seq++
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	for _, unsub := range w.unsubs {
		unsub()
	}
	w.unsubs = nil
}
