package domain

import "context"

// Transaction exposes the registry operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	CreateAnimal(Animal) (Animal, error)
	UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error)
	CreateTransferRequest(TransferRequest) (TransferRequest, error)
	UpdateTransferRequest(id string, mutator func(*TransferRequest) error) (TransferRequest, error)
	// CreateAlert inserts the alert at the head of the alert list.
	CreateAlert(Alert) (Alert, error)
	UpdateAlert(id string, mutator func(*Alert) error) (Alert, error)
	CreateButcheryRecord(ButcheryRecord) (ButcheryRecord, error)
	FindUser(id string) (User, bool)
	FindAnimal(id string) (Animal, bool)
	FindTransferRequest(id string) (TransferRequest, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is the abstraction over the registry and its durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetUser(id string) (User, bool)
	ListUsers() []User
	GetAnimal(id string) (Animal, bool)
	ListAnimals() []Animal
	ListTransferRequests() []TransferRequest
	ListAlerts() []Alert
	ListButcheryRecords() []ButcheryRecord
}
