// Package domain defines the livestock registry entities, value types, error
// taxonomy and rule evaluation primitives used by herdbook.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the registry.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies a registered user (farmer, butchery, authority, market agent).
	EntityUser EntityType = "user"
	// EntityAnimal identifies a tracked animal.
	EntityAnimal EntityType = "animal"
	// EntityTransferRequest identifies a pending or resolved sale proposal.
	EntityTransferRequest EntityType = "transfer_request"
	// EntityAlert identifies a theft or red-zone alert.
	EntityAlert EntityType = "alert"
	// EntityButcheryRecord identifies a logged slaughter reconciliation.
	EntityButcheryRecord EntityType = "butchery_record"
)

// Role enumerates the kinds of registry participants.
type Role string

// Supported user roles.
const (
	RoleFarmer      Role = "FARMER"
	RoleButchery    Role = "BUTCHERY"
	RoleAuthority   Role = "AUTHORITY"
	RoleMarketAgent Role = "MARKET_AGENT"
)

// Roles lists every valid role in declaration order.
func Roles() []Role {
	return []Role{RoleFarmer, RoleButchery, RoleAuthority, RoleMarketAgent}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleButchery, RoleAuthority, RoleMarketAgent:
		return true
	}
	return false
}

// AnimalStatus is the position of an animal in the ownership state machine.
type AnimalStatus string

// Animal statuses. ACTIVE is the only status from which sell, slaughter,
// mark-dead and report-stolen actions may start.
const (
	StatusActive          AnimalStatus = "ACTIVE"
	StatusPendingTransfer AnimalStatus = "PENDING_TRANSFER"
	StatusSold            AnimalStatus = "SOLD"
	StatusSlaughtered     AnimalStatus = "SLAUGHTERED"
	StatusDead            AnimalStatus = "DEAD"
	StatusStolen          AnimalStatus = "STOLEN"
)

// AnimalStatuses lists every valid status.
func AnimalStatuses() []AnimalStatus {
	return []AnimalStatus{StatusActive, StatusPendingTransfer, StatusSold, StatusSlaughtered, StatusDead, StatusStolen}
}

// Valid reports whether s is one of the declared statuses.
func (s AnimalStatus) Valid() bool {
	for _, known := range AnimalStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// TransferStatus tracks the resolution of a TransferRequest.
type TransferStatus string

// Transfer request statuses. A request is resolved exactly once.
const (
	TransferPending  TransferStatus = "PENDING"
	TransferAccepted TransferStatus = "ACCEPTED"
	TransferRejected TransferStatus = "REJECTED"
)

// TransferType classifies a finalized ownership change.
type TransferType string

// Transfer record kinds.
const (
	TransferSale             TransferType = "SALE"
	TransferInheritance      TransferType = "INHERITANCE"
	TransferButcheryTransfer TransferType = "BUTCHERY_TRANSFER"
)

// AlertType classifies alerts.
type AlertType string

// Alert kinds.
const (
	AlertStolen  AlertType = "STOLEN"
	AlertRedZone AlertType = "RED_ZONE"
)

// ScopeAll targets an alert at every county.
const ScopeAll = "ALL"

// User is a registry participant.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Role               Role      `json:"role"`
	Phone              string    `json:"phone,omitempty"`
	County             string    `json:"county"`
	Village            string    `json:"village"`
	RegistrationNumber string    `json:"registration_number"`
	CreatedAt          time.Time `json:"created_at"`
}

// TransferRecord is an immutable history entry describing a finalized ownership change.
type TransferRecord struct {
	Date       time.Time    `json:"date"`
	FromUserID string       `json:"from_user_id"`
	ToUserID   string       `json:"to_user_id"`
	Type       TransferType `json:"type"`
	Weight     *float64     `json:"weight,omitempty"`
}

// Animal represents an individual head of livestock tracked by the registry.
type Animal struct {
	ID              string           `json:"id"`
	SerialNumber    string           `json:"serial_number"`
	Species         string           `json:"species"`
	OwnerID         string           `json:"owner_id"`
	Status          AnimalStatus     `json:"status"`
	Description     string           `json:"description"`
	Photos          []string         `json:"photos"`
	BiometricHash   string           `json:"biometric_hash,omitempty"`
	RegisteredAt    time.Time        `json:"registered_at"`
	TransferHistory []TransferRecord `json:"transfer_history"`
}

// legacyAnimal mirrors the older single-photo shape alongside the current fields.
type legacyAnimal struct {
	animalAlias
	PhotoURL string `json:"photoUrl,omitempty"`
}

type animalAlias Animal

// UnmarshalJSON decodes both the current multi-photo shape and the legacy shape
// carrying a single photoUrl, upgrading the latter to a one-element Photos list.
func (a *Animal) UnmarshalJSON(data []byte) error {
	var raw legacyAnimal
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Animal(raw.animalAlias)
	if len(a.Photos) == 0 && raw.PhotoURL != "" {
		a.Photos = []string{raw.PhotoURL}
	}
	return nil
}

// Clone returns a deep copy of the animal.
func (a Animal) Clone() Animal {
	cp := a
	// Empty slices stay non-nil so they encode as [] rather than null.
	if a.Photos != nil {
		cp.Photos = append([]string{}, a.Photos...)
	}
	if a.TransferHistory != nil {
		cp.TransferHistory = make([]TransferRecord, len(a.TransferHistory))
		for i, rec := range a.TransferHistory {
			cp.TransferHistory[i] = rec.Clone()
		}
	}
	return cp
}

// Clone returns a copy with its own weight pointer.
func (r TransferRecord) Clone() TransferRecord {
	cp := r
	if r.Weight != nil {
		w := *r.Weight
		cp.Weight = &w
	}
	return cp
}

// TransferRequest is a pending, explicitly resolved ownership change proposal.
type TransferRequest struct {
	ID         string         `json:"id"`
	AnimalID   string         `json:"animal_id"`
	FromUserID string         `json:"from_user_id"`
	ToUserID   string         `json:"to_user_id"`
	Status     TransferStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Clone returns a copy with its own resolution timestamp.
func (r TransferRequest) Clone() TransferRequest {
	cp := r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}

// Alert is a theft or red-zone notification targeted at a county or ALL.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	AnimalID  string    `json:"animal_id"`
	Detail    string    `json:"detail"`
	Scope     string    `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// VisibleIn reports whether the alert targets the given county.
func (a Alert) VisibleIn(county string) bool {
	return a.Scope == ScopeAll || a.Scope == county
}

// ButcheryRecord reconciles live, dead and sold weights for one slaughter.
type ButcheryRecord struct {
	ID         string    `json:"id"`
	AnimalID   string    `json:"animal_id"`
	ButcheryID string    `json:"butchery_id"`
	LiveWeight float64   `json:"live_weight"`
	DeadWeight float64   `json:"dead_weight"`
	MeatSold   float64   `json:"meat_sold"`
	Date       time.Time `json:"date"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured by transactions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionImport asserts a record loaded from a snapshot. Before and After
	// hold the same record so rules check it as it stands.
	ActionImport Action = "import"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
