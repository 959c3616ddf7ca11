// Package store owns the persistent side of the Scout offline cache: a
// named, versioned local database with a record table and a collection
// metadata table, plus transactional primitives over both.
package store

import (
	"context"

	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
)

// State tracks the lifecycle of a store connection.
type State int

const (
	StateUninitialized State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "uninitialized"
	}
}

// Txn gives transactional access to the record and metadata tables. All
// operations performed through one Txn commit or roll back together.
type Txn interface {
	// Metadata returns the metadata row for a collection, or nil when the
	// collection has never been written.
	Metadata(name string) (*model.CollectionMetadata, error)
	PutMetadata(md model.CollectionMetadata) error
	DeleteMetadata(name string) error

	// Records returns every record envelope stored for a collection.
	Records(collection string) ([]model.RecordEnvelope, error)
	PutRecord(rec model.RecordEnvelope) error
	DeleteRecords(collection string) error
}

// Store is the persistent key/value collaborator the cache manager is built
// on. Implementations must make Open idempotent and single-flighted:
// concurrent callers before the first open completes all share one physical
// open attempt.
type Store interface {
	// Open prepares the store for use, creating or upgrading the schema as
	// needed. A schema version change drops and recreates every table.
	Open(ctx context.Context) error

	// Close releases the connection. The next Open starts from scratch.
	Close() error

	// ValidateSchema reports whether both required tables exist. It never
	// returns an error; callers decide whether absence is fatal.
	ValidateSchema(ctx context.Context) bool

	// View runs fn inside a readonly transaction.
	View(ctx context.Context, fn func(Txn) error) error

	// Update runs fn inside a readwrite transaction.
	Update(ctx context.Context, fn func(Txn) error) error

	// Destroy deletes the entire store. A deletion blocked by another
	// connection is logged and completes in the background.
	Destroy(ctx context.Context) error

	// SchemaVersion returns the schema generation this store was opened at.
	SchemaVersion() int
}
