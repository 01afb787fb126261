package domain

import "context"

// RuleView provides read-only access to registry records for rule evaluation.
type RuleView interface {
	ListUsers() []User
	ListAnimals() []Animal
	ListTransferRequests() []TransferRequest
	ListAlerts() []Alert
	ListButcheryRecords() []ButcheryRecord
	FindUser(id string) (User, bool)
	FindAnimal(id string) (Animal, bool)
	FindAnimalBySerial(serial string) (Animal, bool)
	FindAnimalByBiometricHash(hash string) (Animal, bool)
	FindTransferRequest(id string) (TransferRequest, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
