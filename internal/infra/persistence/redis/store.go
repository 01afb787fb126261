// Package redis mirrors the registry into Redis, one string key per bucket,
// so several service replicas can hydrate from shared state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/pkg/domain"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPrefix namespaces bucket keys when none is configured.
const DefaultPrefix = "herdbook"

// bucketBackend reads and writes bucket payloads. The production backend is
// a go-redis client; tests substitute an in-memory map.
type bucketBackend interface {
	load(ctx context.Context, keys []string) (map[string][]byte, error)
	save(ctx context.Context, values map[string][]byte) error
	close() error
}

// Store persists state to Redis while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	backend bucketBackend
	prefix  string
	mu      sync.Mutex
	logger  *slog.Logger
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

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewStore connects to the Redis server at url (redis://host:port/db), pings it
// and hydrates the registry from existing bucket keys.
func NewStore(url string, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	if url == "" {
		return nil, errors.New("redis url required")
	}
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newStore(clientBackend{client: client}, engine, opts...)
}

func newStore(backend bucketBackend, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	s := &Store{
		Store:   memory.NewStore(engine),
		backend: backend,
		prefix:  DefaultPrefix,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	found, err := backend.load(context.Background(), s.keys())
	if err != nil {
		return nil, fmt.Errorf("load buckets: %w", err)
	}
	if len(found) == 0 {
		return s, nil
	}
	raw := make(map[string][]byte, len(found))
	for _, bucket := range memory.Buckets {
		if payload, ok := found[s.key(bucket)]; ok {
			raw[bucket] = payload
		}
	}
	snapshot, problems := memory.DecodeBuckets(raw)
	for _, p := range problems {
		s.logger.Warn("discarding unreadable bucket", "bucket", p.Bucket, "error", p.Err)
	}
	quarantined, err := s.LoadState(context.Background(), snapshot)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	for _, q := range quarantined {
		s.logger.Warn("quarantined invalid record", "animal_id", q.Animal.ID, "serial_number", q.Animal.SerialNumber, "reason", q.Violations[0].Message)
	}
	return s, nil
}

func (s *Store) key(bucket string) string { return s.prefix + ":" + bucket }

func (s *Store) keys() []string {
	out := make([]string, 0, len(memory.Buckets))
	for _, bucket := range memory.Buckets {
		out = append(out, s.key(bucket))
	}
	return out
}

// RunInTransaction applies fn within a registry transaction, then writes every
// bucket in one MULTI/EXEC block. A failed write is logged, not returned.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.Persist(context.WithoutCancel(ctx)); pErr != nil {
		s.logger.Error("snapshot write failed", "driver", "redis", "prefix", s.prefix, "error", fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, pErr))
	}
	return res, nil
}

// Persist writes every bucket of the current registry state.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return err
	}
	values := make(map[string][]byte, len(buckets))
	for bucket, payload := range buckets {
		values[s.key(bucket)] = payload
	}
	return s.backend.save(ctx, values)
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.backend.close() }

type clientBackend struct {
	client *redis.Client
}

func (b clientBackend) load(ctx context.Context, keys []string) (map[string][]byte, error) {
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (b clientBackend) save(ctx context.Context, values map[string][]byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, payload := range values {
			pipe.Set(ctx, key, payload, 0)
		}
		return nil
	})
	return err
}

func (b clientBackend) close() error { return b.client.Close() }
