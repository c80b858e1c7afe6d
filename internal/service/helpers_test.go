package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduadmin/portal/internal/adapters/devauth"
	"github.com/eduadmin/portal/internal/credstore"
	mocks "github.com/eduadmin/portal/internal/mocks/auth"
	"github.com/eduadmin/portal/internal/ports"
)

// fixture wires a manager over toggleable backends so tests can inspect what was persisted.
type fixture struct {
	durable   *mocks.ToggleBackend
	ephemeral *mocks.ToggleBackend
	store     *credstore.Store
	state     *SessionState
	manager   *SessionManager
}

func newFixture(t *testing.T, provider ports.AuthProvider, opts ...func(*SessionManagerOptions)) *fixture {
	t.Helper()
	return newFixtureOn(t, mocks.NewToggleBackend(), mocks.NewToggleBackend(), provider, opts...)
}

func newFixtureOn(t *testing.T, durable, ephemeral *mocks.ToggleBackend, provider ports.AuthProvider, opts ...func(*SessionManagerOptions)) *fixture {
	t.Helper()
	store := credstore.New(credstore.Options{Durable: durable, Ephemeral: ephemeral})
	state := NewSessionState(store, nil)
	o := SessionManagerOptions{State: state, Provider: provider}
	for _, fn := range opts {
		fn(&o)
	}
	return &fixture{
		durable:   durable,
		ephemeral: ephemeral,
		store:     store,
		state:     state,
		manager:   NewSessionManager(o),
	}
}

func newDemoProvider(t *testing.T, cfg devauth.Config) *devauth.Provider {
	t.Helper()
	cfg.BcryptCost = bcrypt.MinCost
	if cfg.Secret == nil {
		cfg.Secret = []byte("service-test")
	}
	p, err := devauth.NewProvider(cfg)
	require.NoError(t, err)
	return p
}

// recordingNotifier captures published events and lets tests push events to listeners.
type recordingNotifier struct {
	mu        sync.Mutex
	published []ports.ChangeEvent
	events    chan ports.ChangeEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan ports.ChangeEvent, 8)}
}

func (n *recordingNotifier) Publish(_ context.Context, ev ports.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, ev)
	return nil
}

func (n *recordingNotifier) Listen(ctx context.Context, fn func(ports.ChangeEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.events:
			fn(ev)
		}
	}
}

func (n *recordingNotifier) Published() []ports.ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.ChangeEvent(nil), n.published...)
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Fire runs the callback even if stopped, like a timer that lost the race with Stop.
func (t *fakeTimer) Fire() { t.f() }

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func (c *fakeClock) Latest() *fakeTimer {
	ts := c.Timers()
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

// countingLogouter counts Logout calls.
type countingLogouter struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLogouter) Logout(context.Context) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
}

func (l *countingLogouter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}
