package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	cerrors "github.com/Adventurous-Bytes/scout-sub000/internal/errors"
	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
)

// MemoryStore implements Store using in-memory maps. It exists for tests and
// for ephemeral deployments where persistence across restarts is not needed;
// it honors the same transactional contract as the SQLite adapter, including
// all-or-nothing application of Update bodies.
type MemoryStore struct {
	version int
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	records  map[string]map[string]model.RecordEnvelope // collection -> domain id
	metadata map[string]model.CollectionMetadata

	// test hooks
	failErr  error
	schemaOK bool
}

// NewMemoryStore creates a new in-memory store at the given schema version.
func NewMemoryStore(schemaVersion int, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		version:  schemaVersion,
		logger:   logger,
		schemaOK: true,
	}
}

// SchemaVersion returns the schema generation this store opens at.
func (s *MemoryStore) SchemaVersion() int {
	return s.version
}

// Open initializes the maps. Idempotent.
func (s *MemoryStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return cerrors.StoreUnavailable("store open failed", s.failErr)
	}
	if s.state == StateOpen {
		return nil
	}
	s.records = make(map[string]map[string]model.RecordEnvelope)
	s.metadata = make(map[string]model.CollectionMetadata)
	s.state = StateOpen
	return nil
}

// Close resets the store to uninitialized, keeping its contents.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUninitialized
	return nil
}

// ValidateSchema reports whether the store is open and its schema intact.
func (s *MemoryStore) ValidateSchema(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen && s.schemaOK
}

// View runs fn inside a readonly transaction.
func (s *MemoryStore) View(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, true, fn)
}

// Update runs fn inside a readwrite transaction. Mutations are staged and
// applied only if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, false, fn)
}

func (s *MemoryStore) run(ctx context.Context, readonly bool, fn func(Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return cerrors.TransactionFailed("transaction failed", s.failErr)
	}
	if s.state != StateOpen {
		return cerrors.StoreUnavailable("store is not open", nil).
			WithDetail("state", s.state.String())
	}

	txn := &memoryTxn{store: s, readonly: readonly}
	if err := fn(txn); err != nil {
		if cerrors.IsCacheError(err) {
			return err
		}
		return cerrors.TransactionFailed("transaction aborted", err)
	}
	txn.apply()
	return nil
}

// Destroy drops all contents and resets the store.
func (s *MemoryStore) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.metadata = nil
	s.state = StateUninitialized
	return nil
}

// FailWith makes every subsequent Open and transaction fail with err until
// called again with nil. Test hook.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// BreakSchema makes ValidateSchema report false. Test hook.
func (s *MemoryStore) BreakSchema() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaOK = false
}

// memoryTxn stages mutations so a failed transaction body leaves the store
// untouched. The store mutex is held for the whole transaction.
type memoryTxn struct {
	store    *MemoryStore
	readonly bool

	putRecs []model.RecordEnvelope
	delRecs []string
	putMeta []model.CollectionMetadata
	delMeta []string
}

func (t *memoryTxn) Metadata(name string) (*model.CollectionMetadata, error) {
	md, ok := t.store.metadata[name]
	if !ok {
		return nil, nil
	}
	copied := md
	return &copied, nil
}

func (t *memoryTxn) PutMetadata(md model.CollectionMetadata) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.putMeta = append(t.putMeta, md)
	return nil
}

func (t *memoryTxn) DeleteMetadata(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.delMeta = append(t.delMeta, name)
	return nil
}

func (t *memoryTxn) Records(collection string) ([]model.RecordEnvelope, error) {
	var recs []model.RecordEnvelope
	for _, rec := range t.store.records[collection] {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (t *memoryTxn) PutRecord(rec model.RecordEnvelope) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.putRecs = append(t.putRecs, rec)
	return nil
}

func (t *memoryTxn) DeleteRecords(collection string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.delRecs = append(t.delRecs, collection)
	return nil
}

func (t *memoryTxn) writable() error {
	if t.readonly {
		return cerrors.TransactionFailed("write attempted in readonly transaction", nil)
	}
	return nil
}

func (t *memoryTxn) apply() {
	for _, collection := range t.delRecs {
		delete(t.store.records, collection)
	}
	for _, rec := range t.putRecs {
		byID, ok := t.store.records[rec.Collection]
		if !ok {
			byID = make(map[string]model.RecordEnvelope)
			t.store.records[rec.Collection] = byID
		}
		byID[rec.DomainID] = rec
	}
	for _, name := range t.delMeta {
		delete(t.store.metadata, name)
	}
	for _, md := range t.putMeta {
		t.store.metadata[md.Name] = md
	}
}
