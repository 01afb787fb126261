package core

import "herdbook/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Role               = domain.Role
	AnimalStatus       = domain.AnimalStatus
	User               = domain.User
	Animal             = domain.Animal
	TransferRecord     = domain.TransferRecord
	TransferRequest    = domain.TransferRequest
	Alert              = domain.Alert
	ButcheryRecord     = domain.ButcheryRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityUser            = domain.EntityUser
	EntityAnimal          = domain.EntityAnimal
	EntityTransferRequest = domain.EntityTransferRequest
	EntityAlert           = domain.EntityAlert
	EntityButcheryRecord  = domain.EntityButcheryRecord
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
	ActionImport = domain.ActionImport
)

// Outcome carries everything a transition produced inside its transaction.
type Outcome struct {
	Animal  Animal           `json:"animal"`
	Request *TransferRequest `json:"request,omitempty"`
	Record  *ButcheryRecord  `json:"record,omitempty"`
	Alerts  []Alert          `json:"alerts,omitempty"`
	Result  Result           `json:"result"`
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
