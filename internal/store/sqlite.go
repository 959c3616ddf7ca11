package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	cerrors "github.com/Adventurous-Bytes/scout-sub000/internal/errors"
	"github.com/Adventurous-Bytes/scout-sub000/internal/model"
)

const (
	recordsTable  = "records"
	metadataTable = "collection_metadata"

	// blockedRetryInterval paces upgrade retries while another connection
	// holds the database.
	blockedRetryInterval = 100 * time.Millisecond
)

// SQLiteStore implements Store on a single SQLite database file. The schema
// generation lives in PRAGMA user_version; any difference between the stored
// and requested version triggers a destructive drop-and-recreate.
type SQLiteStore struct {
	path    string
	version int
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	db      *sql.DB
	opening *flight
}

// SQLiteConfig holds SQLite store configuration
type SQLiteConfig struct {
	Path          string
	SchemaVersion int
}

// NewSQLiteStore creates a new SQLite-backed store. The database is not
// touched until the first Open.
func NewSQLiteStore(cfg *SQLiteConfig, logger *zap.Logger) *SQLiteStore {
	return &SQLiteStore{
		path:    cfg.Path,
		version: cfg.SchemaVersion,
		logger:  logger,
	}
}

// SchemaVersion returns the schema generation this store opens at.
func (s *SQLiteStore) SchemaVersion() int {
	return s.version
}

// Open opens the database, bootstrapping or destructively upgrading the
// schema. Idempotent; concurrent callers share a single in-flight attempt.
func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	if s.opening != nil {
		fl := s.opening
		s.mu.Unlock()
		return fl.wait(ctx)
	}
	fl := newFlight()
	s.opening = fl
	s.state = StateOpening
	s.mu.Unlock()

	db, err := s.doOpen(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateUninitialized
	} else {
		s.state = StateOpen
		s.db = db
	}
	s.opening = nil
	s.mu.Unlock()

	fl.resolve(err)
	return err
}

func (s *SQLiteStore) doOpen(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000")
	if err != nil {
		return nil, cerrors.StoreUnavailable("failed to open database", err).
			WithDetail("path", s.path)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cerrors.StoreUnavailable("database not reachable", err).
			WithDetail("path", s.path)
	}

	if err := s.configurePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *SQLiteStore) configurePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return cerrors.StoreUnavailable("failed to configure database", err).
				WithDetail("pragma", pragma)
		}
	}
	return nil
}

// ensureSchema creates the tables on first open and performs the destructive
// upgrade when the stored schema generation differs from the requested one.
// An upgrade blocked by another connection is retried until the context
// expires; the block itself is logged, not surfaced.
func (s *SQLiteStore) ensureSchema(ctx context.Context, db *sql.DB) error {
	var stored int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stored); err != nil {
		return cerrors.StoreUnavailable("failed to read schema version", err)
	}

	if stored != 0 && stored != s.version {
		s.logger.Info("Schema version changed, dropping all cached data",
			zap.Int("stored_version", stored),
			zap.Int("requested_version", s.version))
		if err := s.dropTables(ctx, db); err != nil {
			return err
		}
	}

	if err := s.createTables(ctx, db); err != nil {
		return err
	}

	if stored != s.version {
		// PRAGMA does not accept bound parameters; version is an int from
		// our own config, not user input.
		if _, err := db.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(s.version)); err != nil {
			return cerrors.StoreUnavailable("failed to set schema version", err)
		}
	}

	return nil
}

func (s *SQLiteStore) dropTables(ctx context.Context, db *sql.DB) error {
	for {
		_, err := db.ExecContext(ctx,
			"DROP TABLE IF EXISTS "+recordsTable+"; DROP TABLE IF EXISTS "+metadataTable+";")
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return cerrors.StoreUnavailable("schema upgrade failed", err)
		}

		// Another connection is holding the database; the upgrade is
		// blocked, not broken. Wait and retry until our context expires.
		s.logger.Warn("Schema upgrade blocked by another connection, retrying",
			zap.String("path", s.path))
		select {
		case <-time.After(blockedRetryInterval):
		case <-ctx.Done():
			return cerrors.StoreUnavailable("schema upgrade abandoned", ctx.Err())
		}
	}
}

func (s *SQLiteStore) createTables(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ` + recordsTable + ` (
		domain_id      TEXT NOT NULL,
		collection     TEXT NOT NULL,
		payload        BLOB NOT NULL,
		written_at     INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		PRIMARY KEY (collection, domain_id)
	);
	CREATE TABLE IF NOT EXISTS ` + metadataTable + ` (
		name           TEXT PRIMARY KEY,
		written_at     INTEGER NOT NULL,
		ttl_ms         INTEGER NOT NULL,
		format_version TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		etag           TEXT,
		last_modified  TEXT
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return cerrors.StoreUnavailable("failed to create tables", err)
	}
	return nil
}

// ValidateSchema reports whether both cache tables exist. Never fails:
// any probe error reads as "schema missing".
func (s *SQLiteStore) ValidateSchema(ctx context.Context) bool {
	s.mu.Lock()
	db := s.db
	state := s.state
	s.mu.Unlock()

	if state != StateOpen {
		return false
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)",
		recordsTable, metadataTable).Scan(&count)
	if err != nil {
		s.logger.Warn("Schema validation query failed", zap.Error(err))
		return false
	}
	return count == 2
}

// View runs fn inside a readonly transaction.
func (s *SQLiteStore) View(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, true, fn)
}

// Update runs fn inside a readwrite transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, false, fn)
}

func (s *SQLiteStore) run(ctx context.Context, readonly bool, fn func(Txn) error) error {
	s.mu.Lock()
	db := s.db
	state := s.state
	s.mu.Unlock()

	if state != StateOpen {
		return cerrors.StoreUnavailable("store is not open", nil).
			WithDetail("state", state.String())
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.TransactionFailed("failed to begin transaction", err)
	}

	if err := fn(&sqliteTxn{tx: tx, readonly: readonly}); err != nil {
		tx.Rollback()
		if cerrors.IsCacheError(err) {
			return err
		}
		return cerrors.TransactionFailed("transaction aborted", err)
	}

	if err := tx.Commit(); err != nil {
		return cerrors.TransactionFailed("failed to commit transaction", err)
	}
	return nil
}

// Close releases the connection and resets the store to uninitialized.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return cerrors.InternalError("failed to close database", err)
		}
		s.db = nil
	}
	s.state = StateUninitialized
	return nil
}

// Destroy closes the connection and deletes the database file along with its
// WAL sidecars. A removal blocked by another process is logged and retried
// in the background; Destroy itself still succeeds.
func (s *SQLiteStore) Destroy(ctx context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := s.removeFiles(); err != nil {
		s.logger.Warn("Store deletion blocked, retrying in background",
			zap.String("path", s.path), zap.Error(err))
		go s.retryRemove()
	}
	return nil
}

func (s *SQLiteStore) removeFiles() error {
	var firstErr error
	for _, f := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *SQLiteStore) retryRemove() {
	for i := 0; i < 10; i++ {
		time.Sleep(blockedRetryInterval)
		if err := s.removeFiles(); err == nil {
			s.logger.Info("Deferred store deletion completed", zap.String("path", s.path))
			return
		}
	}
	s.logger.Warn("Deferred store deletion gave up", zap.String("path", s.path))
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// sqliteTxn implements Txn over one *sql.Tx. Write methods enforce the
// readonly mode at the handle level since the driver does not.
type sqliteTxn struct {
	tx       *sql.Tx
	readonly bool
}

func (t *sqliteTxn) Metadata(name string) (*model.CollectionMetadata, error) {
	var md model.CollectionMetadata
	var etag, lastModified sql.NullString
	err := t.tx.QueryRow(
		"SELECT name, written_at, ttl_ms, format_version, schema_version, etag, last_modified FROM "+
			metadataTable+" WHERE name = ?", name).
		Scan(&md.Name, &md.WrittenAt, &md.TTLMillis, &md.FormatVersion,
			&md.SchemaVersion, &etag, &lastModified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	md.ETag = etag.String
	md.LastModified = lastModified.String
	return &md, nil
}

func (t *sqliteTxn) PutMetadata(md model.CollectionMetadata) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(
		"INSERT OR REPLACE INTO "+metadataTable+
			" (name, written_at, ttl_ms, format_version, schema_version, etag, last_modified) VALUES (?, ?, ?, ?, ?, ?, ?)",
		md.Name, md.WrittenAt, md.TTLMillis, md.FormatVersion, md.SchemaVersion,
		nullable(md.ETag), nullable(md.LastModified))
	return err
}

func (t *sqliteTxn) DeleteMetadata(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec("DELETE FROM "+metadataTable+" WHERE name = ?", name)
	return err
}

func (t *sqliteTxn) Records(collection string) ([]model.RecordEnvelope, error) {
	rows, err := t.tx.Query(
		"SELECT domain_id, collection, payload, written_at, schema_version FROM "+
			recordsTable+" WHERE collection = ?", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.RecordEnvelope
	for rows.Next() {
		var rec model.RecordEnvelope
		if err := rows.Scan(&rec.DomainID, &rec.Collection, &rec.Payload,
			&rec.WrittenAt, &rec.SchemaVersion); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (t *sqliteTxn) PutRecord(rec model.RecordEnvelope) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(
		"INSERT OR REPLACE INTO "+recordsTable+
			" (domain_id, collection, payload, written_at, schema_version) VALUES (?, ?, ?, ?, ?)",
		rec.DomainID, rec.Collection, rec.Payload, rec.WrittenAt, rec.SchemaVersion)
	return err
}

func (t *sqliteTxn) DeleteRecords(collection string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec("DELETE FROM "+recordsTable+" WHERE collection = ?", collection)
	return err
}

func (t *sqliteTxn) writable() error {
	if t.readonly {
		return cerrors.TransactionFailed("write attempted in readonly transaction", nil)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
