// Package catalogstore holds the process-wide, read-only catalog snapshot
// behind an atomically-swapped pointer, grounded on the teacher's
// pkg/external resilience stack (pkg/external/cache.go,
// pkg/external/circuit_breaker.go) generalized from "external variant
// databases" to "the catalog source": a single flaky external collaborator
// whose failures must never surface a half-built or stale-without-notice
// snapshot to a request.
package catalogstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Snapshot is the process-wide, immutable catalog as loaded from the
// external source at a point in time.
type Snapshot struct {
	Version  string
	Skus     []domain.CatalogSKU
	LoadedAt time.Time
}

// Source is the external collaborator that supplies catalog rows. Its
// concrete implementation (HTTP fetch, file read, DB query) lives outside
// the decision core; the store only depends on this narrow interface.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Store holds the active snapshot behind an atomic pointer and guards
// reloads with a circuit breaker so a flapping source fails fast instead of
// hammering it, per spec §5 ("readers never see a half-built snapshot") and
// §7 (CATALOG_UNAVAILABLE never falls back to an empty or partial catalog).
type Store struct {
	source          Source
	log             *logrus.Logger
	current         atomic.Pointer[Snapshot]
	breaker         *gobreaker.CircuitBreaker
	hot             *lru.Cache[string, Snapshot]
	onVersionChange func(version string)
}

// OnVersionChange registers a callback fired after Reload swaps in a
// snapshot whose version differs from the one it replaced. cmd/server/main.go
// uses this to flush internal/routingcache, since every routing result
// cached under the old version is now stale.
func (s *Store) OnVersionChange(fn func(version string)) {
	s.onVersionChange = fn
}

// Config tunes the circuit breaker guarding repeated failed reloads.
type Config struct {
	BreakerMaxFails uint32
	BreakerOpenFor  time.Duration
	HotCacheSize    int
}

// New builds a Store. It does not load a snapshot; call EnsureLoaded (or
// Reload) before serving requests.
func New(source Source, log *logrus.Logger, cfg Config) (*Store, error) {
	if cfg.HotCacheSize <= 0 {
		cfg.HotCacheSize = 4
	}
	hot, err := lru.New[string, Snapshot](cfg.HotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: building hot cache: %w", err)
	}

	maxFails := cfg.BreakerMaxFails
	if maxFails == 0 {
		maxFails = 3
	}
	openFor := cfg.BreakerOpenFor
	if openFor == 0 {
		openFor = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog-source",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name, "from": from.String(), "to": to.String(),
			}).Warn("catalog source circuit breaker state change")
		},
	})

	return &Store{source: source, log: log, breaker: breaker, hot: hot}, nil
}

// Snapshot returns the currently active catalog snapshot. A request that
// observes no loaded snapshot at all is a CATALOG_UNAVAILABLE condition; the
// caller (internal/pipeline) turns that into the typed pipeline error.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	if cur := s.current.Load(); cur != nil {
		return *cur, nil
	}
	return s.Reload(ctx)
}

// Reload fetches a fresh snapshot through the circuit breaker and swaps it
// in atomically. Readers mid-request keep their already-loaded pointer;
// nothing ever observes a half-built snapshot.
func (s *Store) Reload(ctx context.Context) (Snapshot, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.source.Load(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			if cur := s.current.Load(); cur != nil {
				s.log.WithField("breaker", "catalog-source").Warn("catalog reload circuit open, serving last known snapshot")
				return *cur, nil
			}
			return Snapshot{}, fmt.Errorf("catalog source unavailable (circuit open): %w", err)
		}
		return Snapshot{}, fmt.Errorf("catalog source load failed: %w", err)
	}

	snap := result.(Snapshot)
	snap.LoadedAt = time.Now().UTC()
	previous := s.current.Load()
	s.current.Store(&snap)
	s.hot.Add(snap.Version, snap)
	s.log.WithFields(logrus.Fields{
		"catalog_version": snap.Version, "sku_count": len(snap.Skus),
	}).Info("catalog snapshot loaded")

	if s.onVersionChange != nil && (previous == nil || previous.Version != snap.Version) {
		s.onVersionChange(snap.Version)
	}
	return snap, nil
}

// EnsureLoaded guarantees a snapshot is present, loading one if necessary.
// Startup calls this once so the first request never pays a cold-load
// penalty and a broken source fails the process boot, not a request.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	_, err := s.Snapshot(ctx)
	return err
}

// ByVersion returns a previously hot-cached snapshot by version, if still
// resident.
func (s *Store) ByVersion(version string) (Snapshot, bool) {
	return s.hot.Get(version)
}
