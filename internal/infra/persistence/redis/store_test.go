package redis

import (
	"bytes"
	"context"
	"errors"
	"herdbook/pkg/domain"
	"log/slog"
	"strings"
	"testing"
)

type mapBackend struct {
	data    map[string][]byte
	failSet bool
}

func (m *mapBackend) load(_ context.Context, keys []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mapBackend) save(_ context.Context, values map[string][]byte) error {
	if m.failSet {
		return errors.New("READONLY replica")
	}
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

func (m *mapBackend) close() error { return nil }

func TestRedisStoreWritesPrefixedBuckets(t *testing.T) {
	backend := &mapBackend{data: map[string][]byte{}}
	store, err := newStore(backend, domain.NewRulesEngine(), WithPrefix("test"))
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Name: "Wekesa", Role: domain.RoleButchery})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if !strings.Contains(string(backend.data["test:users"]), "Wekesa") {
		t.Fatalf("expected users bucket under prefixed key, got %v", backend.data)
	}

	reloaded, err := newStore(backend, nil, WithPrefix("test"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.ListUsers()) != 1 {
		t.Fatalf("expected user hydrated from redis")
	}
}

func TestRedisStoreLogsFailedWrites(t *testing.T) {
	backend := &mapBackend{data: map[string][]byte{"herdbook:alerts": []byte(`"nope"`)}}
	var logs bytes.Buffer
	store, err := newStore(backend, nil, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if !strings.Contains(logs.String(), "bucket=alerts") {
		t.Fatalf("expected corrupt alerts bucket warning, got %q", logs.String())
	}
	backend.failSet = true
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Name: "Nduta", Role: domain.RoleFarmer})
		return err
	}); err != nil {
		t.Fatalf("write failure must not surface: %v", err)
	}
	if !strings.Contains(logs.String(), "READONLY") {
		t.Fatalf("expected write failure logged, got %q", logs.String())
	}
}

func TestNewStoreRejectsBadURL(t *testing.T) {
	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewStore("http://not-redis", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}
