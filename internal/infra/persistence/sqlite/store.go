// Package sqlite persists the registry to an embedded SQLite file, one JSON
// payload per bucket, snapshotting the full state after every commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/pkg/domain"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "herdbook.db"

// Store wraps the in-memory registry and mirrors it into a single SQLite
// table keyed by bucket name.
type Store struct {
	*memory.Store
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load warnings and persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore opens (or creates) the SQLite database at path and hydrates the
// registry from any existing buckets.
func NewStore(path string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{
		Store:  memory.NewStore(engine),
		db:     db,
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	raw := make(map[string][]byte)
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raw[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	snapshot, problems := memory.DecodeBuckets(raw)
	for _, p := range problems {
		s.logger.Warn("discarding unreadable bucket", "bucket", p.Bucket, "error", p.Err)
	}
	quarantined, err := s.LoadState(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	for _, q := range quarantined {
		s.logger.Warn("quarantined invalid record", "animal_id", q.Animal.ID, "serial_number", q.Animal.SerialNumber, "reason", q.Violations[0].Message)
	}
	return nil
}

// Persist writes every bucket of the current registry state in one SQL transaction.
func (s *Store) Persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, buckets[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunInTransaction applies fn to the registry, then snapshots state to SQLite.
// A failed snapshot is logged and does not undo the in-memory commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.Persist(context.WithoutCancel(ctx)); pErr != nil {
		s.logger.Error("snapshot write failed", "driver", "sqlite", "path", s.path, "error", fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, pErr))
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
