package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow statuses
const (
	EscrowStatusCreated    = "created"
	EscrowStatusFunded     = "funded"
	EscrowStatusInProgress = "in_progress"
	EscrowStatusCompleted  = "completed"
	EscrowStatusDisputed   = "disputed"
	EscrowStatusCancelled  = "cancelled"
)

// Valid escrow state transitions: from -> []to.
// in_progress is kept for wire compatibility with stored rows; the
// orchestrator leaves an escrow in funded until every milestone is approved.
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusCreated:    {EscrowStatusFunded, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusFunded:     {EscrowStatusCompleted, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusInProgress: {EscrowStatusCompleted, EscrowStatusDisputed, EscrowStatusCancelled},
	EscrowStatusDisputed:   {EscrowStatusCancelled},
	EscrowStatusCompleted:  {},
	EscrowStatusCancelled:  {},
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
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

type Escrow struct {
	ID              uuid.UUID       `json:"id"`
	ContractAddress string          `json:"contract_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	CreatorID       uuid.UUID       `json:"creator_id"`
	MakerID         uuid.UUID       `json:"maker_id"`
	NFTID           *uuid.UUID      `json:"nft_id,omitempty"`
	ChatID          *uuid.UUID      `json:"chat_id,omitempty"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	FundedAt        *time.Time      `json:"funded_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EscrowWithMilestones embeds Escrow and carries the ordered milestone
// collection to avoid N+1 queries on the read paths.
type EscrowWithMilestones struct {
	Escrow
	Milestones []Milestone `json:"milestones"`
}
