// Package memory provides the in-memory registry used directly for tests and
// ephemeral environments and embedded by every durable store.
package memory

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Animal aliases domain.Animal.
	Animal = domain.Animal
	// TransferRequest aliases domain.TransferRequest.
	TransferRequest = domain.TransferRequest
	// Alert aliases domain.Alert.
	Alert = domain.Alert
	// ButcheryRecord aliases domain.ButcheryRecord.
	ButcheryRecord = domain.ButcheryRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users     map[string]User
	animals   map[string]Animal
	transfers map[string]TransferRequest
	// alerts are kept most recent first.
	alerts     []Alert
	butchery   []ButcheryRecord
	quarantine []QuarantinedAnimal
}

func newMemoryState() memoryState {
	return memoryState{
		users:     make(map[string]User),
		animals:   make(map[string]Animal),
		transfers: make(map[string]TransferRequest),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.animals {
		cloned.animals[k] = v.Clone()
	}
	for k, v := range s.transfers {
		cloned.transfers[k] = v.Clone()
	}
	cloned.alerts = append([]Alert(nil), s.alerts...)
	cloned.butchery = append([]ButcheryRecord(nil), s.butchery...)
	cloned.quarantine = cloneQuarantine(s.quarantine)
	return cloned
}

// Store provides an in-memory transactional registry.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records created without a timestamp.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// QuarantinedAnimal is an animal set aside while loading stored state because
// it broke a blocking rule.
type QuarantinedAnimal struct {
	Animal        Animal             `json:"animal"`
	Violations    []domain.Violation `json:"violations"`
	QuarantinedAt time.Time          `json:"quarantined_at"`
}

func cloneQuarantine(in []QuarantinedAnimal) []QuarantinedAnimal {
	if in == nil {
		return nil
	}
	out := make([]QuarantinedAnimal, len(in))
	for i, q := range in {
		out[i] = QuarantinedAnimal{
			Animal:        q.Animal.Clone(),
			Violations:    append([]domain.Violation(nil), q.Violations...),
			QuarantinedAt: q.QuarantinedAt,
		}
	}
	return out
}

// evaluateState runs the rules engine over every animal in state as it
// stands, so loaded records face the same invariants as committed ones.
func (s *Store) evaluateState(ctx context.Context, state *memoryState) (Result, error) {
	if s.engine == nil {
		return Result{}, nil
	}
	view := newTransactionView(state)
	animals := view.ListAnimals()
	changes := make([]Change, 0, len(animals))
	for _, a := range animals {
		changes = append(changes, Change{Entity: domain.EntityAnimal, Action: domain.ActionImport, Before: a, After: a.Clone()})
	}
	return s.engine.Evaluate(ctx, view, changes)
}

// ImportState replaces the store state with snapshot. Nothing changes when a
// rule blocks any imported record; the violations come back in a
// domain.RuleViolationError.
func (s *Store) ImportState(ctx context.Context, snapshot Snapshot) (Result, error) {
	state := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.evaluateState(ctx, &state)
	if err != nil {
		return Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	s.state = state
	return res, nil
}

// LoadState installs state read back from durable storage. Animals that break
// a blocking rule are moved to the quarantine list instead of failing the
// load. The newly quarantined animals are returned.
func (s *Store) LoadState(ctx context.Context, snapshot Snapshot) ([]QuarantinedAnimal, error) {
	state := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.evaluateState(ctx, &state)
	if err != nil {
		return nil, err
	}
	blocked := make(map[string][]domain.Violation)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock && v.Entity == domain.EntityAnimal {
			blocked[v.EntityID] = append(blocked[v.EntityID], v)
		}
	}
	ids := make([]string, 0, len(blocked))
	for id := range blocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var quarantined []QuarantinedAnimal
	now := s.nowFn()
	for _, id := range ids {
		a, ok := state.animals[id]
		if !ok {
			continue
		}
		quarantined = append(quarantined, QuarantinedAnimal{Animal: a.Clone(), Violations: blocked[id], QuarantinedAt: now})
		delete(state.animals, id)
	}
	state.quarantine = append(state.quarantine, cloneQuarantine(quarantined)...)
	s.state = state
	return quarantined, nil
}

// ListQuarantined returns animals set aside by LoadState, oldest first.
func (s *Store) ListQuarantined() []QuarantinedAnimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneQuarantine(s.state.quarantine)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no rule blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetUser returns a user by id.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	return u, ok
}

// ListUsers returns all users ordered by creation.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListUsers()
}

// GetAnimal returns an animal by id.
func (s *Store) GetAnimal(id string) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return a.Clone(), true
}

// ListAnimals returns all animals ordered by registration.
func (s *Store) ListAnimals() []Animal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAnimals()
}

// ListTransferRequests returns all transfer requests ordered by creation.
func (s *Store) ListTransferRequests() []TransferRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListTransferRequests()
}

// ListAlerts returns alerts, most recent first.
func (s *Store) ListAlerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAlerts()
}

// ListButcheryRecords returns butchery records in the order they were logged.
func (s *Store) ListButcheryRecords() []ButcheryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListButcheryRecords()
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func newID() string {
	return uuid.NewString()
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindUser exposes user lookup within the transaction scope.
func (tx *transaction) FindUser(id string) (User, bool) {
	u, ok := tx.state.users[id]
	return u, ok
}

// FindAnimal exposes animal lookup within the transaction scope.
func (tx *transaction) FindAnimal(id string) (Animal, bool) {
	a, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return a.Clone(), true
}

// FindTransferRequest exposes request lookup within the transaction scope.
func (tx *transaction) FindTransferRequest(id string) (TransferRequest, bool) {
	r, ok := tx.state.transfers[id]
	if !ok {
		return TransferRequest{}, false
	}
	return r.Clone(), true
}

// CreateUser stores a new user.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = tx.now
	}
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// CreateAnimal stores a new animal.
func (tx *transaction) CreateAnimal(a Animal) (Animal, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.animals[a.ID]; exists {
		return Animal{}, fmt.Errorf("animal %q already exists", a.ID)
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = tx.now
	}
	if a.Photos == nil {
		a.Photos = []string{}
	}
	if a.TransferHistory == nil {
		a.TransferHistory = []domain.TransferRecord{}
	}
	tx.state.animals[a.ID] = a.Clone()
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionCreate, After: a.Clone()})
	return a.Clone(), nil
}

// UpdateAnimal mutates an animal using the provided mutator function.
func (tx *transaction) UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error) {
	current, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Animal{}, err
	}
	next.ID = id
	tx.state.animals[id] = next.Clone()
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// CreateTransferRequest stores a new transfer request.
func (tx *transaction) CreateTransferRequest(r TransferRequest) (TransferRequest, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.transfers[r.ID]; exists {
		return TransferRequest{}, fmt.Errorf("transfer request %q already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	tx.state.transfers[r.ID] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityTransferRequest, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// UpdateTransferRequest mutates a transfer request.
func (tx *transaction) UpdateTransferRequest(id string, mutator func(*TransferRequest) error) (TransferRequest, error) {
	current, ok := tx.state.transfers[id]
	if !ok {
		return TransferRequest{}, domain.NotFoundError{Entity: domain.EntityTransferRequest, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return TransferRequest{}, err
	}
	next.ID = id
	tx.state.transfers[id] = next.Clone()
	tx.recordChange(Change{Entity: domain.EntityTransferRequest, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// CreateAlert inserts a new alert at the head of the alert list.
func (tx *transaction) CreateAlert(a Alert) (Alert, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	for _, existing := range tx.state.alerts {
		if existing.ID == a.ID {
			return Alert{}, fmt.Errorf("alert %q already exists", a.ID)
		}
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.now
	}
	tx.state.alerts = append([]Alert{a}, tx.state.alerts...)
	tx.recordChange(Change{Entity: domain.EntityAlert, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateAlert mutates an alert in place, keeping its position.
func (tx *transaction) UpdateAlert(id string, mutator func(*Alert) error) (Alert, error) {
	for i, current := range tx.state.alerts {
		if current.ID != id {
			continue
		}
		next := current
		if err := mutator(&next); err != nil {
			return Alert{}, err
		}
		next.ID = id
		tx.state.alerts[i] = next
		tx.recordChange(Change{Entity: domain.EntityAlert, Action: domain.ActionUpdate, Before: current, After: next})
		return next, nil
	}
	return Alert{}, domain.NotFoundError{Entity: domain.EntityAlert, ID: id}
}

// CreateButcheryRecord appends a butchery record.
func (tx *transaction) CreateButcheryRecord(r ButcheryRecord) (ButcheryRecord, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	for _, existing := range tx.state.butchery {
		if existing.ID == r.ID {
			return ButcheryRecord{}, fmt.Errorf("butchery record %q already exists", r.ID)
		}
	}
	if r.Date.IsZero() {
		r.Date = tx.now
	}
	tx.state.butchery = append(tx.state.butchery, r)
	tx.recordChange(Change{Entity: domain.EntityButcheryRecord, Action: domain.ActionCreate, After: r})
	return r, nil
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListUsers returns all users ordered by creation time then id.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAnimals returns all animals ordered by registration time then id.
func (v transactionView) ListAnimals() []Animal {
	out := make([]Animal, 0, len(v.state.animals))
	for _, a := range v.state.animals {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListTransferRequests returns all requests ordered by creation time then id.
func (v transactionView) ListTransferRequests() []TransferRequest {
	out := make([]TransferRequest, 0, len(v.state.transfers))
	for _, r := range v.state.transfers {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAlerts returns alerts most recent first.
func (v transactionView) ListAlerts() []Alert {
	return append([]Alert{}, v.state.alerts...)
}

// ListButcheryRecords returns records in append order.
func (v transactionView) ListButcheryRecords() []ButcheryRecord {
	return append([]ButcheryRecord{}, v.state.butchery...)
}

// FindUser retrieves a user by id.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

// FindAnimal retrieves an animal by id.
func (v transactionView) FindAnimal(id string) (Animal, bool) {
	a, ok := v.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return a.Clone(), true
}

// FindAnimalBySerial retrieves an animal by serial number.
func (v transactionView) FindAnimalBySerial(serial string) (Animal, bool) {
	if serial == "" {
		return Animal{}, false
	}
	for _, a := range v.state.animals {
		if a.SerialNumber == serial {
			return a.Clone(), true
		}
	}
	return Animal{}, false
}

// FindAnimalByBiometricHash retrieves the animal carrying a non-empty hash.
func (v transactionView) FindAnimalByBiometricHash(hash string) (Animal, bool) {
	if hash == "" {
		return Animal{}, false
	}
	for _, a := range v.state.animals {
		if a.BiometricHash == hash {
			return a.Clone(), true
		}
	}
	return Animal{}, false
}

// FindTransferRequest retrieves a request by id.
func (v transactionView) FindTransferRequest(id string) (TransferRequest, bool) {
	r, ok := v.state.transfers[id]
	if !ok {
		return TransferRequest{}, false
	}
	return r.Clone(), true
}
