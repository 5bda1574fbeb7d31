package dto

import "time"

type MilestoneSpecRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Percentage  string     `json:"percentage"` // decimal as string
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type CreateEscrowRequest struct {
	MakerID     string                 `json:"maker_id"`
	TotalAmount string                 `json:"total_amount"` // decimal as string
	Milestones  []MilestoneSpecRequest `json:"milestones"`
	NFTID       *string                `json:"nft_id,omitempty"`
	ChatID      *string                `json:"chat_id,omitempty"`
}

type FundEscrowRequest struct {
	TransactionHash string `json:"transaction_hash"`
}

type ApproveMilestoneRequest struct {
	TransactionHash *string `json:"transaction_hash,omitempty"`
}

type DisputeMilestoneRequest struct {
	Reason string `json:"reason"`
}

type CancelEscrowRequest struct {
	Reason string `json:"reason"`
}
