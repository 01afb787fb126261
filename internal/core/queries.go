package core

import (
	"context"
	"fmt"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/pkg/domain"
)

// GetAnimal returns a copy of the animal.
func (s *Service) GetAnimal(id string) (Animal, bool) {
	return s.store.GetAnimal(id)
}

// ListAnimals returns every animal in registration order.
func (s *Service) ListAnimals() []Animal {
	return s.store.ListAnimals()
}

// FindAnimalBySerial looks an animal up by its serial number.
func (s *Service) FindAnimalBySerial(ctx context.Context, serial string) (Animal, bool) {
	var (
		found Animal
		ok    bool
	)
	_ = s.store.View(ctx, func(view TransactionView) error {
		found, ok = view.FindAnimalBySerial(serial)
		return nil
	})
	return found, ok
}

// NextSerialNumber previews the serial RegisterAnimal would generate for
// species right now. Callers that stage work under the serial must still
// handle ErrDuplicateSerialNumber if another registration lands first.
func (s *Service) NextSerialNumber(ctx context.Context, species string) string {
	var serial string
	_ = s.store.View(ctx, func(view TransactionView) error {
		serial = serialNumber(species, s.now(), view)
		return nil
	})
	return serial
}

// GetUser returns a copy of the user.
func (s *Service) GetUser(id string) (User, bool) {
	return s.store.GetUser(id)
}

// ListUsers returns every user in creation order.
func (s *Service) ListUsers() []User {
	return s.store.ListUsers()
}

// ListAlerts returns alerts most recent first. A non-empty scope keeps alerts
// targeted at that county or at ALL; ALL itself returns everything.
func (s *Service) ListAlerts(scope string) []Alert {
	alerts := s.store.ListAlerts()
	if scope == "" || scope == domain.ScopeAll {
		return alerts
	}
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.VisibleIn(scope) {
			out = append(out, a)
		}
	}
	return out
}

// ListTransferRequests returns every transfer request in creation order.
func (s *Service) ListTransferRequests() []TransferRequest {
	return s.store.ListTransferRequests()
}

// ListButcheryRecords returns slaughter records in append order.
func (s *Service) ListButcheryRecords() []ButcheryRecord {
	return s.store.ListButcheryRecords()
}

// View runs fn against a read-only copy of the registry.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// StateExporter is implemented by registries that can snapshot their state.
type StateExporter interface {
	ExportState() memory.Snapshot
}

// StateImporter is implemented by registries that can replace their state
// after checking it against their rules.
type StateImporter interface {
	ImportState(context.Context, memory.Snapshot) (Result, error)
}

// ExportSnapshot returns the serializable registry state.
func (s *Service) ExportSnapshot() (memory.Snapshot, bool) {
	exporter, ok := s.store.(StateExporter)
	if !ok {
		return memory.Snapshot{}, false
	}
	return exporter.ExportState(), true
}

// ImportSnapshot replaces the registry state and, for durable stores, writes
// it through immediately. A snapshot holding any animal that breaks a
// blocking rule is rejected whole with a RuleViolationError.
func (s *Service) ImportSnapshot(ctx context.Context, snapshot memory.Snapshot) error {
	importer, ok := s.store.(StateImporter)
	if !ok {
		return fmt.Errorf("store %T does not support import", s.store)
	}
	if _, err := importer.ImportState(ctx, snapshot); err != nil {
		s.logger.Warn("snapshot rejected", "error", err)
		return err
	}
	if persister, ok := s.store.(interface{ Persist(context.Context) error }); ok {
		if err := persister.Persist(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
		}
	}
	s.logger.Info("snapshot imported", "users", len(snapshot.Users), "animals", len(snapshot.Animals))
	return nil
}
