package credstore

// Package credstore implements the three-tier credential store: durable and ephemeral
// backends with a transparent in-memory fallback when either backend fails.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
	"github.com/eduadmin/portal/internal/observability/metrics"
	"github.com/eduadmin/portal/internal/observability/statsd"
	"github.com/eduadmin/portal/internal/ports"
)

// probeKey is reserved for availability probes and never holds session data.
const probeKey = "__credstore_probe__"

var errNoBackend = errors.New("no backend configured for tier")

// Options groups dependencies for Store. Nil backends are treated as permanently unavailable.
type Options struct {
	Durable   ports.StorageBackend
	Ephemeral ports.StorageBackend
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Store routes each operation to its tier's backend and falls back to memory on failure.
// Callers never observe which physical backend served a request.
type Store struct {
	durable   ports.StorageBackend
	ephemeral ports.StorageBackend
	memory    *MemoryBackend
	logger    *slog.Logger
	metrics   statsd.Sink
}

// New constructs a Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Noop{}
	}
	return &Store{
		durable:   opts.Durable,
		ephemeral: opts.Ephemeral,
		memory:    NewMemoryBackend(),
		logger:    logger,
		metrics:   sink,
	}
}

func (s *Store) backend(tier domainauth.Tier) ports.StorageBackend {
	switch tier {
	case domainauth.TierDurable:
		return s.durable
	case domainauth.TierEphemeral:
		return s.ephemeral
	default:
		return nil
	}
}

// Set writes value under key in tier. A backend failure writes to that tier's memory slot instead.
func (s *Store) Set(ctx context.Context, key, value string, tier domainauth.Tier) {
	slot := memoryKey(tier, key)
	if tier != domainauth.TierMemory {
		err := s.call(tier, func(b ports.StorageBackend) error { return b.Set(ctx, key, value) })
		if err == nil {
			// Drop any copy written while the backend was failing so it cannot shadow this value later.
			_ = s.memory.Remove(ctx, slot)
			return
		}
		s.fellBack(ctx, tier, "set", err)
	}
	_ = s.memory.Set(ctx, slot, value)
}

// Get reads key from tier. The memory copy is served only when the backend fails;
// a healthy backend's miss is a miss.
func (s *Store) Get(ctx context.Context, key string, tier domainauth.Tier) (string, bool) {
	if tier != domainauth.TierMemory {
		var (
			value string
			found bool
		)
		err := s.call(tier, func(b ports.StorageBackend) error {
			var getErr error
			value, found, getErr = b.Get(ctx, key)
			return getErr
		})
		if err == nil {
			return value, found
		}
		s.fellBack(ctx, tier, "get", err)
	}
	v, ok, _ := s.memory.Get(ctx, memoryKey(tier, key))
	return v, ok
}

// Remove deletes key from tier and from that tier's memory slot.
func (s *Store) Remove(ctx context.Context, key string, tier domainauth.Tier) {
	if tier != domainauth.TierMemory {
		if err := s.call(tier, func(b ports.StorageBackend) error { return b.Remove(ctx, key) }); err != nil {
			s.fellBack(ctx, tier, "remove", err)
		}
	}
	_ = s.memory.Remove(ctx, memoryKey(tier, key))
}

// memoryKey namespaces fallback entries by the tier they were written for,
// so a fallen-back ephemeral value is never read back as durable.
func memoryKey(tier domainauth.Tier, key string) string {
	return tier.String() + "/" + key
}

// ClearAll clears every tier unconditionally. Backend failures are logged, never returned.
func (s *Store) ClearAll(ctx context.Context) {
	for _, tier := range []domainauth.Tier{domainauth.TierDurable, domainauth.TierEphemeral} {
		err := s.call(tier, func(b ports.StorageBackend) error { return b.Clear(ctx) })
		if err != nil && !errors.Is(err, errNoBackend) {
			s.logger.WarnContext(ctx, "credential store clear failed", "tier", tier.String(), "error", err)
		}
	}
	_ = s.memory.Clear(ctx)
}

// IsAvailable probes tier with a write-then-remove of a reserved key. Diagnostics only.
func (s *Store) IsAvailable(ctx context.Context, tier domainauth.Tier) bool {
	if tier == domainauth.TierMemory {
		return true
	}
	err := s.call(tier, func(b ports.StorageBackend) error {
		if err := b.Set(ctx, probeKey, "1"); err != nil {
			return err
		}
		return b.Remove(ctx, probeKey)
	})
	return err == nil
}

// call runs fn against tier's backend, converting a missing backend or a panic into an error.
func (s *Store) call(tier domainauth.Tier, fn func(ports.StorageBackend) error) (err error) {
	b := s.backend(tier)
	if b == nil {
		return errNoBackend
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s backend panic: %v", tier, r)
		}
	}()
	return fn(b)
}

func (s *Store) fellBack(ctx context.Context, tier domainauth.Tier, op string, err error) {
	if errors.Is(err, errNoBackend) {
		return
	}
	s.logger.WarnContext(ctx, "credential store fell back to memory",
		"tier", tier.String(),
		"op", op,
		"error", err,
	)
	metrics.EmitStoreFallback(s.metrics, tier.String(), op, err)
}
