// Package cache implements the collection-oriented offline cache the Scout
// application keeps on-device: TTL-based staleness, schema-version-aware
// invalidation, hit/miss accounting, and a background preload policy, all on
// top of a transactional persistent store.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cerrors "github.com/Adventurous-Bytes/scout-sub000/internal/errors"
	"github.com/Adventurous-Bytes/scout-sub000/internal/metrics"
	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
	"github.com/Adventurous-Bytes/scout-sub000/internal/store"
)

// Item is the minimal capability a cacheable domain object must expose: a
// stable identifier used as the record key and a human-readable label used
// for deterministic ordering of reads. An empty CacheKey marks a malformed
// record, which reads silently drop.
type Item interface {
	CacheKey() string
	SortLabel() string
}

// Result is what a cache read returns. Data is nil on a miss; Age is the
// wall-clock time since the collection was last written.
type Result[T Item] struct {
	Data     []T
	IsStale  bool
	Age      time.Duration
	Metadata *model.CollectionMetadata
}

// Manager presents the collection cache API over a Store. It is safe for
// concurrent use from multiple goroutines; background purges and preloads it
// spawns are owned by the manager and joined by Wait.
type Manager[T Item] struct {
	store         store.Store
	logger        *zap.Logger
	metrics       *metrics.Metrics
	deps          map[string][]string
	formatVersion string
	now           func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	bg     sync.WaitGroup
}

// Option configures a Manager.
type Option[T Item] func(*Manager[T])

// WithLogger sets the manager's logger.
func WithLogger[T Item](logger *zap.Logger) Option[T] {
	return func(m *Manager[T]) { m.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics[T Item](mx *metrics.Metrics) Option[T] {
	return func(m *Manager[T]) { m.metrics = mx }
}

// WithClock injects the wall clock. Tests use this to drive staleness.
func WithClock[T Item](now func() time.Time) Option[T] {
	return func(m *Manager[T]) { m.now = now }
}

// WithDependents registers secondary metadata keys tied to a collection;
// Invalidate removes them together with the collection's own metadata.
func WithDependents[T Item](collection string, names ...string) Option[T] {
	return func(m *Manager[T]) { m.deps[collection] = append(m.deps[collection], names...) }
}

// WithFormatVersion sets the payload format version stamped into metadata.
func WithFormatVersion[T Item](v string) Option[T] {
	return func(m *Manager[T]) { m.formatVersion = v }
}

// NewManager creates a cache manager over the given store.
func NewManager[T Item](st store.Store, opts ...Option[T]) *Manager[T] {
	m := &Manager[T]{
		store:         st,
		logger:        zap.NewNop(),
		deps:          make(map[string][]string),
		formatVersion: "1.0.0",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wait blocks until every background task spawned by the manager has
// finished. Intended for shutdown and tests; callers never observe the
// results of those tasks.
func (m *Manager[T]) Wait() {
	m.bg.Wait()
}

// SetOption customizes a single Set call.
type SetOption func(*model.CollectionMetadata)

// WithETag records the validator the remote source returned with this data.
func WithETag(etag string) SetOption {
	return func(md *model.CollectionMetadata) { md.ETag = etag }
}

// WithLastModified records the Last-Modified value the remote source
// returned with this data.
func WithLastModified(v string) SetOption {
	return func(md *model.CollectionMetadata) { md.LastModified = v }
}

// Set writes the full contents of a collection: one record per item plus the
// collection metadata row, atomically in one readwrite transaction. The TTL
// governs staleness of subsequent reads; a zero or negative TTL is stored
// as-is and makes every read stale.
func (m *Manager[T]) Set(ctx context.Context, collection string, items []T, ttl time.Duration, opts ...SetOption) error {
	defer m.observe("set", m.now())

	if err := m.store.Open(ctx); err != nil {
		return cerrors.StoreUnavailable("cannot open store for write", err)
	}
	if !m.store.ValidateSchema(ctx) {
		return cerrors.StoreUnavailable("store schema is missing or invalid", nil)
	}

	nowMs := m.now().UnixMilli()
	version := m.store.SchemaVersion()

	md := model.CollectionMetadata{
		Name:          collection,
		WrittenAt:     nowMs,
		TTLMillis:     ttl.Milliseconds(),
		FormatVersion: m.formatVersion,
		SchemaVersion: version,
	}
	for _, opt := range opts {
		opt(&md)
	}

	err := m.store.Update(ctx, func(txn store.Txn) error {
		for _, item := range items {
			payload, err := json.Marshal(item)
			if err != nil {
				return cerrors.InvalidArgument("item is not serializable", err).
					WithDetail("key", item.CacheKey())
			}
			rec := model.RecordEnvelope{
				DomainID:      item.CacheKey(),
				Collection:    collection,
				Payload:       payload,
				WrittenAt:     nowMs,
				SchemaVersion: version,
			}
			if err := txn.PutRecord(rec); err != nil {
				return err
			}
		}
		return txn.PutMetadata(md)
	})
	if err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.CacheEntries.WithLabelValues(collection).Set(float64(len(items)))
	}
	m.logger.Debug("Cached collection",
		zap.String("collection", collection),
		zap.Int("items", len(items)),
		zap.Duration("ttl", ttl))
	return nil
}

// Get reads a collection. Metadata is consulted first: absent metadata is a
// miss that never touches the record table, and a schema version mismatch is
// a miss that schedules a fire-and-forget purge of the collection. Valid
// reads are filtered of malformed or stale-schema records and sorted by
// label for deterministic ordering.
func (m *Manager[T]) Get(ctx context.Context, collection string) (Result[T], error) {
	defer m.observe("get", m.now())

	miss := Result[T]{IsStale: true}

	if err := m.store.Open(ctx); err != nil {
		m.countMiss()
		return miss, cerrors.StoreUnavailable("cannot open store for read", err)
	}

	var md *model.CollectionMetadata
	var envs []model.RecordEnvelope
	version := m.store.SchemaVersion()

	err := m.store.View(ctx, func(txn store.Txn) error {
		var err error
		md, err = txn.Metadata(collection)
		if err != nil {
			return err
		}
		if md == nil || md.SchemaVersion != version {
			return nil
		}
		envs, err = txn.Records(collection)
		return err
	})
	if err != nil {
		m.countMiss()
		return miss, err
	}

	if md == nil {
		m.countMiss()
		return miss, nil
	}

	if md.SchemaVersion != version {
		m.countMiss()
		m.schedulePurge(collection, md.SchemaVersion, version)
		miss.Metadata = md
		return miss, nil
	}

	items := make([]T, 0, len(envs))
	for _, env := range envs {
		if env.SchemaVersion != version {
			continue
		}
		var item T
		if err := json.Unmarshal(env.Payload, &item); err != nil {
			m.logger.Warn("Dropping undecodable cached record",
				zap.String("collection", collection),
				zap.String("domain_id", env.DomainID),
				zap.Error(err))
			continue
		}
		if item.CacheKey() == "" {
			continue
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortLabel() < items[j].SortLabel()
	})

	now := m.now()
	res := Result[T]{
		Data:     items,
		IsStale:  md.Stale(now),
		Age:      md.Age(now),
		Metadata: md,
	}
	if len(items) > 0 {
		m.countHit()
	} else {
		m.countMiss()
	}
	return res, nil
}

// Clear deletes all records and the metadata row for a collection,
// atomically.
func (m *Manager[T]) Clear(ctx context.Context, collection string) error {
	defer m.observe("clear", m.now())

	if err := m.store.Open(ctx); err != nil {
		return cerrors.StoreUnavailable("cannot open store for clear", err)
	}
	err := m.store.Update(ctx, func(txn store.Txn) error {
		if err := txn.DeleteRecords(collection); err != nil {
			return err
		}
		return txn.DeleteMetadata(collection)
	})
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.CacheEntries.WithLabelValues(collection).Set(0)
	}
	m.logger.Debug("Cleared collection", zap.String("collection", collection))
	return nil
}

// Invalidate deletes only the metadata rows for a collection (its own plus
// any registered dependents), leaving records in place as orphans for the
// next Set to overwrite or a schema purge to reclaim.
func (m *Manager[T]) Invalidate(ctx context.Context, collection string) error {
	defer m.observe("invalidate", m.now())

	if err := m.store.Open(ctx); err != nil {
		return cerrors.StoreUnavailable("cannot open store for invalidate", err)
	}
	return m.store.Update(ctx, func(txn store.Txn) error {
		if err := txn.DeleteMetadata(collection); err != nil {
			return err
		}
		for _, dep := range m.deps[collection] {
			if err := txn.DeleteMetadata(dep); err != nil {
				return err
			}
		}
		return nil
	})
}

// schedulePurge removes a schema-incompatible collection in the background.
// Callers never block on it and never see its result.
func (m *Manager[T]) schedulePurge(collection string, stored, current int) {
	m.logger.Info("Cached schema version mismatch, scheduling purge",
		zap.String("collection", collection),
		zap.Int("stored_version", stored),
		zap.Int("current_version", current))

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := m.store.Update(ctx, func(txn store.Txn) error {
			if err := txn.DeleteRecords(collection); err != nil {
				return err
			}
			return txn.DeleteMetadata(collection)
		})
		if err != nil {
			m.logger.Warn("Background purge failed",
				zap.String("collection", collection), zap.Error(err))
			return
		}
		if m.metrics != nil {
			m.metrics.CachePurgesTotal.Inc()
		}
		m.logger.Debug("Purged incompatible collection", zap.String("collection", collection))
	}()
}

func (m *Manager[T]) countHit() {
	m.hits.Add(1)
	if m.metrics != nil {
		m.metrics.CacheHitsTotal.Inc()
	}
}

func (m *Manager[T]) countMiss() {
	m.misses.Add(1)
	if m.metrics != nil {
		m.metrics.CacheMissesTotal.Inc()
	}
}

func (m *Manager[T]) observe(op string, start time.Time) {
	if m.metrics != nil {
		m.metrics.OpDuration.WithLabelValues(op).Observe(m.now().Sub(start).Seconds())
	}
}
