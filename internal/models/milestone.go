package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Milestone statuses
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusCompleted  = "completed"
	MilestoneStatusApproved   = "approved"
	MilestoneStatusDisputed   = "disputed"
)

// Valid milestone state transitions: from -> []to.
// Disputes are reachable from any status, including approved — a released
// milestone can still be contested while the parent escrow is open.
var ValidMilestoneTransitions = map[string][]string{
	MilestoneStatusPending:    {MilestoneStatusInProgress, MilestoneStatusDisputed},
	MilestoneStatusInProgress: {MilestoneStatusCompleted, MilestoneStatusDisputed},
	MilestoneStatusCompleted:  {MilestoneStatusApproved, MilestoneStatusDisputed},
	MilestoneStatusApproved:   {MilestoneStatusDisputed},
	MilestoneStatusDisputed:   {},
}

func IsValidMilestoneTransition(from, to string) bool {
	allowed, ok := ValidMilestoneTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Metadata keys written by the orchestrator.
const (
	MetaDisputeReason      = "dispute_reason"
	MetaDisputedAt         = "disputed_at"
	MetaCancellationReason = "cancellation_reason"
	MetaCancelledAt        = "cancelled_at"
)

type Milestone struct {
	ID              uuid.UUID       `json:"id"`
	EscrowID        uuid.UUID       `json:"escrow_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Percentage      decimal.Decimal `json:"percentage"`
	Amount          decimal.Decimal `json:"amount"`
	Position        int             `json:"order"` // dense zero-based activation order
	Status          string          `json:"status"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle work happens on the
// milestone. Approved is terminal for the happy path; disputed is terminal
// outright.
func (m *Milestone) IsTerminal() bool {
	return m.Status == MilestoneStatusApproved || m.Status == MilestoneStatusDisputed
}
