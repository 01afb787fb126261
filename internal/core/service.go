package core

import (
	"context"
	"fmt"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/pkg/domain"
	"time"
)

// Service is the ownership and status transition engine. Every operation runs
// inside one registry transaction, so an animal update and the alerts, requests
// and records derived from it commit together or not at all.
type Service struct {
	store     PersistentStore
	logger    Logger
	clock     Clock
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	publisher AlertPublisher
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		logger:    noopLogger{},
		clock:     ClockFunc(nil),
		audit:     noopAudit{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		publisher: noopPublisher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if setter, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		setter.SetNowFunc(svc.now)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory registry.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying registry.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine the store evaluates at commit, when exposed.
func (s *Service) RulesEngine() *RulesEngine {
	return extractRulesEngine(s.store)
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.recordAuditError(ctx, op, entityID, elapsed, err)
		s.logger.Warn("operation failed", "operation", op, "entity_id", entityID, "error", err)
		return err
	}
	s.recordAuditSuccess(ctx, op, entityID, elapsed)
	s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", elapsed)
	return nil
}

func requireAnimal(tx Transaction, id string) (Animal, error) {
	animal, ok := tx.FindAnimal(id)
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: EntityAnimal, ID: id}
	}
	return animal, nil
}

func requireUser(tx Transaction, id string) (User, error) {
	user, ok := tx.FindUser(id)
	if !ok {
		return User{}, domain.NotFoundError{Entity: EntityUser, ID: id}
	}
	return user, nil
}

func requireStatus(animal Animal, event string, required AnimalStatus) error {
	if animal.Status != required {
		return domain.TransitionError{AnimalID: animal.ID, Event: event, From: animal.Status, Required: required}
	}
	return nil
}

// RegisterUser assigns an id, a registration number and a creation time.
func (s *Service) RegisterUser(ctx context.Context, user User) (User, Result, error) {
	var (
		created User
		res     Result
	)
	err := s.run(ctx, "register_user", func(ctx context.Context) (string, error) {
		if !user.Role.Valid() {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidRole, user.Role)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			user.ID = ""
			user.RegistrationNumber = registrationNumber(user.Role, tx.Snapshot())
			user.CreatedAt = s.now()
			var err error
			created, err = tx.CreateUser(user)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// AnimalInput carries the caller-supplied fields of a new animal.
type AnimalInput struct {
	OwnerID       string
	Species       string
	SerialNumber  string
	Description   string
	Photos        []string
	BiometricHash string
}

// RegisterAnimal creates an ACTIVE animal with an empty transfer history. A
// serial number is generated when none is supplied.
func (s *Service) RegisterAnimal(ctx context.Context, input AnimalInput) (Animal, Result, error) {
	var (
		created Animal
		res     Result
	)
	err := s.run(ctx, "register_animal", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, err := requireUser(tx, input.OwnerID); err != nil {
				return err
			}
			view := tx.Snapshot()
			if input.BiometricHash != "" {
				if existing, dup := view.FindAnimalByBiometricHash(input.BiometricHash); dup {
					return fmt.Errorf("%w: already registered to animal %s", domain.ErrDuplicateBiometricHash, existing.ID)
				}
			}
			now := s.now()
			serial := input.SerialNumber
			if serial == "" {
				serial = serialNumber(input.Species, now, view)
			} else if _, dup := view.FindAnimalBySerial(serial); dup {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateSerialNumber, serial)
			}
			var err error
			created, err = tx.CreateAnimal(Animal{
				SerialNumber:    serial,
				Species:         input.Species,
				OwnerID:         input.OwnerID,
				Status:          domain.StatusActive,
				Description:     input.Description,
				Photos:          append([]string{}, input.Photos...),
				BiometricHash:   input.BiometricHash,
				RegisteredAt:    now,
				TransferHistory: []TransferRecord{},
			})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// ReportStolen moves an ACTIVE animal to STOLEN and raises a theft alert
// scoped to the reporter's county.
func (s *Service) ReportStolen(ctx context.Context, animalID, reporterID string) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "report_stolen", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			animal, err := requireAnimal(tx, animalID)
			if err != nil {
				return err
			}
			if err := requireStatus(animal, "report stolen", domain.StatusActive); err != nil {
				return err
			}
			reporter, err := requireUser(tx, reporterID)
			if err != nil {
				return err
			}
			if out.Animal, err = tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.Status = domain.StatusStolen
				return nil
			}); err != nil {
				return err
			}
			alert, err := tx.CreateAlert(newStolenAlert(out.Animal, reporter, s.now()))
			if err != nil {
				return err
			}
			out.Alerts = []Alert{alert}
			return nil
		})
		return animalID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	s.publish(ctx, out.Alerts)
	return out, nil
}

// RecoverAnimal returns a STOLEN animal to ACTIVE and resolves its open theft alerts.
func (s *Service) RecoverAnimal(ctx context.Context, animalID string) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "recover_animal", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			animal, err := requireAnimal(tx, animalID)
			if err != nil {
				return err
			}
			if err := requireStatus(animal, "recover", domain.StatusStolen); err != nil {
				return err
			}
			if out.Animal, err = tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.Status = domain.StatusActive
				return nil
			}); err != nil {
				return err
			}
			out.Alerts, err = resolveStolenAlerts(tx, animalID)
			return err
		})
		return animalID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// MarkDead moves an ACTIVE animal to DEAD.
func (s *Service) MarkDead(ctx context.Context, animalID string) (Outcome, error) {
	return s.simpleTransition(ctx, "mark_dead", "mark dead", animalID, domain.StatusDead)
}

// HomeSlaughter records an off-books slaughter of an ACTIVE animal. No
// butchery record is produced.
func (s *Service) HomeSlaughter(ctx context.Context, animalID string) (Outcome, error) {
	return s.simpleTransition(ctx, "home_slaughter", "home slaughter", animalID, domain.StatusSlaughtered)
}

func (s *Service) simpleTransition(ctx context.Context, op, event, animalID string, next AnimalStatus) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			animal, err := requireAnimal(tx, animalID)
			if err != nil {
				return err
			}
			if err := requireStatus(animal, event, domain.StatusActive); err != nil {
				return err
			}
			out.Animal, err = tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.Status = next
				return nil
			})
			return err
		})
		return animalID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// InitiateTransfer opens a PENDING sale request for an ACTIVE animal and parks
// the animal in PENDING_TRANSFER. An empty fromUserID defaults to the owner.
func (s *Service) InitiateTransfer(ctx context.Context, animalID, fromUserID, toUserID string) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "initiate_transfer", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			animal, err := requireAnimal(tx, animalID)
			if err != nil {
				return err
			}
			if err := requireStatus(animal, "initiate transfer", domain.StatusActive); err != nil {
				return err
			}
			if fromUserID == "" {
				fromUserID = animal.OwnerID
			}
			if _, err := requireUser(tx, fromUserID); err != nil {
				return err
			}
			if _, err := requireUser(tx, toUserID); err != nil {
				return err
			}
			request, err := tx.CreateTransferRequest(TransferRequest{
				AnimalID:   animalID,
				FromUserID: fromUserID,
				ToUserID:   toUserID,
				Status:     domain.TransferPending,
				CreatedAt:  s.now(),
			})
			if err != nil {
				return err
			}
			out.Request = &request
			out.Animal, err = tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.Status = domain.StatusPendingTransfer
				return nil
			})
			return err
		})
		if out.Request != nil {
			return out.Request.ID, err
		}
		return "", err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func requirePendingRequest(tx Transaction, requestID string) (TransferRequest, error) {
	request, ok := tx.FindTransferRequest(requestID)
	if !ok {
		return TransferRequest{}, domain.NotFoundError{Entity: EntityTransferRequest, ID: requestID}
	}
	if request.Status != domain.TransferPending {
		return TransferRequest{}, domain.RequestStateError{RequestID: requestID, Status: request.Status}
	}
	return request, nil
}

// AcceptTransfer completes a pending sale: the animal changes hands, becomes
// SOLD and gains one SALE history record copied from the request.
func (s *Service) AcceptTransfer(ctx context.Context, requestID string) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "accept_transfer", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			request, err := requirePendingRequest(tx, requestID)
			if err != nil {
				return err
			}
			animal, err := requireAnimal(tx, request.AnimalID)
			if err != nil {
				return err
			}
			if err := requireStatus(animal, "accept transfer", domain.StatusPendingTransfer); err != nil {
				return err
			}
			now := s.now()
			if out.Animal, err = tx.UpdateAnimal(animal.ID, func(a *Animal) error {
				a.OwnerID = request.ToUserID
				a.Status = domain.StatusSold
				a.TransferHistory = append(a.TransferHistory, TransferRecord{
					Date:       now,
					FromUserID: request.FromUserID,
					ToUserID:   request.ToUserID,
					Type:       domain.TransferSale,
				})
				return nil
			}); err != nil {
				return err
			}
			resolved, err := tx.UpdateTransferRequest(requestID, func(r *TransferRequest) error {
				r.Status = domain.TransferAccepted
				r.ResolvedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			out.Request = &resolved
			return nil
		})
		return requestID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// RejectTransfer declines a pending sale. Ownership is untouched and the
// animal returns to ACTIVE if it is still waiting on this transfer.
func (s *Service) RejectTransfer(ctx context.Context, requestID string) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "reject_transfer", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, err := requirePendingRequest(tx, requestID); err != nil {
				return err
			}
			now := s.now()
			resolved, err := tx.UpdateTransferRequest(requestID, func(r *TransferRequest) error {
				r.Status = domain.TransferRejected
				r.ResolvedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			out.Request = &resolved
			animal, err := requireAnimal(tx, resolved.AnimalID)
			if err != nil {
				return err
			}
			if animal.Status != domain.StatusPendingTransfer {
				out.Animal = animal
				return nil
			}
			out.Animal, err = tx.UpdateAnimal(animal.ID, func(a *Animal) error {
				a.Status = domain.StatusActive
				return nil
			})
			return err
		})
		return requestID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// TransferToButchery hands an animal to a butchery, recording the live weight.
// Status is left as it was.
func (s *Service) TransferToButchery(ctx context.Context, animalID, fromButcheryID, toButcheryID string, weight float64) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "transfer_to_butchery", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, err := requireAnimal(tx, animalID); err != nil {
				return err
			}
			if _, err := requireUser(tx, toButcheryID); err != nil {
				return err
			}
			now := s.now()
			w := weight
			out.Animal, err = tx.UpdateAnimal(animalID, func(a *Animal) error {
				a.OwnerID = toButcheryID
				a.TransferHistory = append(a.TransferHistory, TransferRecord{
					Date:       now,
					FromUserID: fromButcheryID,
					ToUserID:   toButcheryID,
					Type:       domain.TransferButcheryTransfer,
					Weight:     &w,
				})
				return nil
			})
			return err
		})
		return animalID, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// LogSlaughter appends a butchery record, marks the animal SLAUGHTERED whatever
// its prior status and raises a red-zone alert when the weights do not reconcile.
func (s *Service) LogSlaughter(ctx context.Context, record ButcheryRecord) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "log_slaughter", func(ctx context.Context) (string, error) {
		var err error
		out.Result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, err := requireAnimal(tx, record.AnimalID); err != nil {
				return err
			}
			if _, err := requireUser(tx, record.ButcheryID); err != nil {
				return err
			}
			record.ID = ""
			record.Date = s.now()
			created, err := tx.CreateButcheryRecord(record)
			if err != nil {
				return err
			}
			out.Record = &created
			if out.Animal, err = tx.UpdateAnimal(record.AnimalID, func(a *Animal) error {
				a.Status = domain.StatusSlaughtered
				return nil
			}); err != nil {
				return err
			}
			if alert, flagged := DetectRedZone(created); flagged {
				alert.Timestamp = created.Date
				stored, err := tx.CreateAlert(alert)
				if err != nil {
					return err
				}
				out.Alerts = []Alert{stored}
			}
			return nil
		})
		if out.Record != nil {
			return out.Record.ID, err
		}
		return "", err
	})
	if err != nil {
		return Outcome{}, err
	}
	if len(out.Alerts) > 0 {
		s.logger.Warn("red zone slaughter record", "butchery_id", record.ButcheryID, "animal_id", record.AnimalID,
			"meat_sold", record.MeatSold, "dead_weight", record.DeadWeight)
	}
	s.publish(ctx, out.Alerts)
	return out, nil
}
