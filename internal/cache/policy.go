package cache

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
	"github.com/Adventurous-Bytes/scout-sub000/internal/store"
)

// Refresh decision reasons, ordered by precedence. The wording for a cache
// that was never written differs from a merely stale one so operators can
// tell the two states apart in logs.
const (
	ReasonForced         = "refresh forced by caller"
	ReasonNeverCached    = "no cached data available"
	ReasonEmpty          = "cached collection is empty"
	ReasonSchemaMismatch = "cached schema version is incompatible"
	ReasonStale          = "cached data is older than its TTL"
	ReasonExceedsMaxAge  = "cached data exceeds caller max age"
	ReasonReadFailed     = "cache read failed"
	ReasonFresh          = "cached data is fresh"
)

// RefreshOptions tunes a ShouldRefresh evaluation.
type RefreshOptions struct {
	// MaxAge, when positive, overrides the stored TTL with a tighter bound
	// for this one evaluation.
	MaxAge time.Duration
	// Force requests a refresh unconditionally.
	Force bool
}

// IsValid re-derives validity from a fresh read: the collection must exist,
// be non-empty, and be within its TTL. A supplied override replaces the
// stored TTL for this one check without mutating metadata. Never errors;
// any failure reads as invalid.
func (m *Manager[T]) IsValid(ctx context.Context, collection string, override ...time.Duration) bool {
	res, err := m.Get(ctx, collection)
	if err != nil {
		m.logger.Debug("Validity check degraded to invalid", zap.Error(err))
		return false
	}
	if res.Metadata == nil || len(res.Data) == 0 {
		return false
	}
	if len(override) > 0 {
		return res.Age <= override[0]
	}
	return !res.IsStale
}

// ShouldRefresh decides whether the caller should refetch from the remote
// source. Checks are evaluated in a fixed precedence order: an explicit
// force always wins, and a missing or incompatible cache is reported before
// a merely stale one. Never errors; a failed read reads as "refresh".
func (m *Manager[T]) ShouldRefresh(ctx context.Context, collection string, opts RefreshOptions) model.Decision {
	if opts.Force {
		return model.Decision{Refresh: true, Reason: ReasonForced}
	}

	res, err := m.Get(ctx, collection)
	if err != nil {
		m.logger.Debug("Refresh check degraded to refresh", zap.Error(err))
		return model.Decision{Refresh: true, Reason: ReasonReadFailed}
	}

	switch {
	case res.Metadata == nil:
		return model.Decision{Refresh: true, Reason: ReasonNeverCached}
	case res.Metadata.SchemaVersion != m.store.SchemaVersion():
		return model.Decision{Refresh: true, Reason: ReasonSchemaMismatch}
	case len(res.Data) == 0:
		return model.Decision{Refresh: true, Reason: ReasonEmpty}
	case res.IsStale:
		return model.Decision{Refresh: true, Reason: ReasonStale}
	case opts.MaxAge > 0 && res.Age > opts.MaxAge:
		return model.Decision{Refresh: true, Reason: ReasonExceedsMaxAge}
	default:
		return model.Decision{Refresh: false, Reason: ReasonFresh}
	}
}

// Preload spawns a background task that invokes the caller-supplied loader
// and caches its result. Designed to run unattended on startup: it never
// reports an outcome, and every failure is logged and absorbed. Join with
// Wait.
func (m *Manager[T]) Preload(ctx context.Context, collection string, load func(context.Context) ([]T, error), ttl time.Duration) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		items, err := load(ctx)
		if err != nil {
			m.preloadFailed(collection, "loader failed", err)
			return
		}
		if err := m.Set(ctx, collection, items, ttl); err != nil {
			m.preloadFailed(collection, "cache write failed", err)
			return
		}
		m.logger.Debug("Preloaded collection",
			zap.String("collection", collection),
			zap.Int("items", len(items)))
	}()
}

func (m *Manager[T]) preloadFailed(collection, what string, err error) {
	if m.metrics != nil {
		m.metrics.PreloadFailuresTotal.Inc()
	}
	m.logger.Warn("Cache preload failed",
		zap.String("collection", collection),
		zap.String("stage", what),
		zap.Error(err))
}

// Stats reads the collection once and combines the result with the running
// process-lifetime counters. Never errors; a failed read yields an empty,
// stale snapshot.
func (m *Manager[T]) Stats(ctx context.Context, collection string) model.CacheStats {
	res, err := m.Get(ctx, collection)
	if err != nil {
		m.logger.Debug("Stats read degraded to empty", zap.Error(err))
		res = Result[T]{IsStale: true}
	}

	stats := model.CacheStats{
		Size:        len(res.Data),
		IsStale:     res.IsStale,
		TotalHits:   m.hits.Load(),
		TotalMisses: m.misses.Load(),
	}
	if res.Metadata != nil {
		stats.LastUpdated = time.UnixMilli(res.Metadata.WrittenAt)
	}
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = math.Round(float64(stats.TotalHits)/float64(total)*100) / 100
	}
	return stats
}

// ResetDatabase closes the current connection and deletes the underlying
// store entirely; the next operation recreates it from nothing.
func (m *Manager[T]) ResetDatabase(ctx context.Context) error {
	m.logger.Info("Resetting cache database")
	return m.store.Destroy(ctx)
}

// CheckHealth runs the cache's diagnostic probes: store open, schema
// validation, schema version compatibility of the persisted collection, and
// a trial read. It collects one issue string per failed probe instead of
// erroring so callers can render partial diagnostics.
func (m *Manager[T]) CheckHealth(ctx context.Context, collection string) model.HealthReport {
	issues := []string{}

	if err := m.store.Open(ctx); err != nil {
		issues = append(issues, fmt.Sprintf("store unavailable: %v", err))
		return model.HealthReport{Healthy: false, Issues: issues}
	}

	if !m.store.ValidateSchema(ctx) {
		issues = append(issues, "store schema is missing required tables")
	}

	var md *model.CollectionMetadata
	err := m.store.View(ctx, func(txn store.Txn) error {
		var err error
		md, err = txn.Metadata(collection)
		return err
	})
	switch {
	case err != nil:
		issues = append(issues, fmt.Sprintf("trial read failed: %v", err))
	case md != nil && md.SchemaVersion != m.store.SchemaVersion():
		issues = append(issues, fmt.Sprintf(
			"persisted schema version %d is incompatible with current version %d",
			md.SchemaVersion, m.store.SchemaVersion()))
	}

	return model.HealthReport{Healthy: len(issues) == 0, Issues: issues}
}
