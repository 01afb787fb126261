package sqlite

import (
	"bytes"
	"context"
	"herdbook/pkg/domain"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		owner, err := tx.CreateUser(domain.User{Name: "Kamau", Role: domain.RoleFarmer, County: "Kiambu"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateAnimal(domain.Animal{SerialNumber: "COW-1", OwnerID: owner.ID, Status: domain.StatusActive}); err != nil {
			return err
		}
		_, err = tx.CreateAlert(domain.Alert{Type: domain.AlertStolen, Scope: "Kiambu"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := len(reloaded.ListAnimals()); got != 1 {
		t.Fatalf("expected 1 animal, got %d", got)
	}
	if got := len(reloaded.ListUsers()); got != 1 {
		t.Fatalf("expected 1 user, got %d", got)
	}
	if got := len(reloaded.ListAlerts()); got != 1 {
		t.Fatalf("expected 1 alert, got %d", got)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreCorruptBucketFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('users', ?), ('animals', ?)`,
		[]byte(`{broken`),
		[]byte(`[{"id":"a1","serial_number":"COW-7","photoUrl":"legacy.jpg"}]`)); err != nil {
		t.Fatalf("seed raw buckets: %v", err)
	}
	_ = store.Close()

	var logs bytes.Buffer
	reloaded, err := NewStore(path, nil, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("reload with corrupt bucket must not fail: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if len(reloaded.ListUsers()) != 0 {
		t.Fatalf("expected corrupt users bucket to fall back to empty")
	}
	animal, ok := reloaded.GetAnimal("a1")
	if !ok || len(animal.Photos) != 1 || animal.Photos[0] != "legacy.jpg" {
		t.Fatalf("expected legacy animal upgraded, got %+v", animal)
	}
	if !strings.Contains(logs.String(), "bucket=users") {
		t.Fatalf("expected warning naming the bucket, got %q", logs.String())
	}
}

func TestSQLiteStorePersistFailureIsLoggedNotReturned(t *testing.T) {
	var logs bytes.Buffer
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_ = store.DB().Close()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Name: "Njeri", Role: domain.RoleAuthority})
		return err
	})
	if err != nil {
		t.Fatalf("persistence failure must not surface, got %v", err)
	}
	if len(store.ListUsers()) != 1 {
		t.Fatalf("in-memory commit must survive a failed snapshot")
	}
	if !strings.Contains(logs.String(), "persistence write failure") {
		t.Fatalf("expected persistence failure to be logged, got %q", logs.String())
	}
}

type statusEnumRule struct{}

func (statusEnumRule) Name() string { return "status_enum" }

func (statusEnumRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if a, ok := change.After.(domain.Animal); ok && !a.Status.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule: "status_enum", Severity: domain.SeverityBlock, Message: "status outside enum",
				Entity: domain.EntityAnimal, EntityID: a.ID,
			})
		}
	}
	return res, nil
}

func TestSQLiteStoreQuarantinesInvalidAnimalsOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('animals', ?)`,
		[]byte(`{"a1":{"serial_number":"COW-1","status":"LOST"},"a2":{"serial_number":"COW-2","status":"SOLD"}}`)); err != nil {
		t.Fatalf("seed raw buckets: %v", err)
	}
	_ = store.Close()

	engine := domain.NewRulesEngine()
	engine.Register(statusEnumRule{})
	var logs bytes.Buffer
	reloaded, err := NewStore(path, engine, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("invalid records must not fail the load: %v", err)
	}
	if _, ok := reloaded.GetAnimal("a1"); ok {
		t.Fatalf("expected out-of-enum animal to be quarantined")
	}
	if got, ok := reloaded.GetAnimal("a2"); !ok || got.Status != domain.StatusSold {
		t.Fatalf("expected valid animal loaded, got %+v", got)
	}
	if !strings.Contains(logs.String(), "quarantined invalid record") || !strings.Contains(logs.String(), "animal_id=a1") {
		t.Fatalf("expected quarantine to be logged, got %q", logs.String())
	}

	// The next write carries the quarantine bucket even when the caller's
	// context is already gone.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := reloaded.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{ID: "u9", Name: "Akinyi", Role: domain.RoleFarmer})
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if strings.Contains(logs.String(), "snapshot write failed") {
		t.Fatalf("cancelled caller context must not abort the snapshot: %q", logs.String())
	}
	_ = reloaded.Close()

	again, err := NewStore(path, engine)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = again.Close() })
	if _, ok := again.GetUser("u9"); !ok {
		t.Fatalf("expected user written under cancelled context to be persisted")
	}
	if q := again.ListQuarantined(); len(q) != 1 || q[0].Animal.ID != "a1" {
		t.Fatalf("expected quarantine persisted, got %+v", q)
	}
}
