package services

import (
	"context"
	"fmt"

	"github.com/Astralabs2050/render-backend-sub000/internal/models"
	"github.com/Astralabs2050/render-backend-sub000/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EscrowStats is the read-side aggregate derived from milestone state.
type EscrowStats struct {
	TotalMilestones     int             `json:"total_milestones"`
	CompletedMilestones int             `json:"completed_milestones"`
	ApprovedMilestones  int             `json:"approved_milestones"`
	ReleasedAmount      decimal.Decimal `json:"released_amount"`
	RemainingAmount     decimal.Decimal `json:"remaining_amount"`
	ProgressPercentage  decimal.Decimal `json:"progress_percentage"`
}

// BalanceSnapshot is the full per-chat balance view: the selected escrow, its
// ordered milestones and the derived stats.
type BalanceSnapshot struct {
	models.EscrowWithMilestones
	Stats EscrowStats `json:"stats"`
}

// StatsService is a pure projector over persisted escrow state. It never
// mutates anything.
type StatsService struct {
	store repositories.EscrowStore
	log   *zap.Logger
}

func NewStatsService(store repositories.EscrowStore, log *zap.Logger) *StatsService {
	return &StatsService{store: store, log: log}
}

func (s *StatsService) GetStats(ctx context.Context, escrowID uuid.UUID) (*EscrowStats, error) {
	escrow, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		if err == repositories.ErrNotFound {
			return nil, fmt.Errorf("escrow %s: %w", escrowID, ErrNotFound)
		}
		return nil, err
	}
	milestones, err := s.store.ListMilestones(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	stats := deriveStats(escrow, milestones)
	return &stats, nil
}

// GetBalanceByChat resolves the escrow linked to a chat and composes the
// balance snapshot. When several escrows share the chat, the active one
// (funded or in_progress, most recently funded first) wins; otherwise the
// most recently created escrow is used.
func (s *StatsService) GetBalanceByChat(ctx context.Context, chatID uuid.UUID) (*BalanceSnapshot, error) {
	escrows, err := s.store.ListEscrows(ctx, repositories.EscrowFilter{ChatID: &chatID, Limit: 100})
	if err != nil {
		return nil, err
	}
	if len(escrows) == 0 {
		return nil, fmt.Errorf("no escrow linked to chat %s: %w", chatID, ErrNotFound)
	}

	selected := selectActiveEscrow(escrows)

	milestones, err := s.store.ListMilestones(ctx, selected.ID)
	if err != nil {
		return nil, err
	}
	return &BalanceSnapshot{
		EscrowWithMilestones: models.EscrowWithMilestones{Escrow: *selected, Milestones: milestones},
		Stats:                deriveStats(selected, milestones),
	}, nil
}

// selectActiveEscrow implements the documented total order: escrows in
// funded/in_progress first, most recently funded winning; with no active
// escrow the most recently created one (list is created_at DESC) is returned.
func selectActiveEscrow(escrows []models.Escrow) *models.Escrow {
	var active *models.Escrow
	for i := range escrows {
		e := &escrows[i]
		if e.Status != models.EscrowStatusFunded && e.Status != models.EscrowStatusInProgress {
			continue
		}
		if active == nil {
			active = e
			continue
		}
		if e.FundedAt != nil && (active.FundedAt == nil || e.FundedAt.After(*active.FundedAt)) {
			active = e
		}
	}
	if active != nil {
		return active
	}
	return &escrows[0]
}

func deriveStats(escrow *models.Escrow, milestones []models.Milestone) EscrowStats {
	stats := EscrowStats{
		TotalMilestones:    len(milestones),
		ReleasedAmount:     decimal.Zero,
		ProgressPercentage: decimal.Zero,
	}
	for i := range milestones {
		switch milestones[i].Status {
		case models.MilestoneStatusCompleted:
			stats.CompletedMilestones++
		case models.MilestoneStatusApproved:
			stats.ApprovedMilestones++
			stats.ReleasedAmount = stats.ReleasedAmount.Add(milestones[i].Amount)
		}
	}
	stats.RemainingAmount = escrow.TotalAmount.Sub(stats.ReleasedAmount)
	if stats.TotalMilestones > 0 {
		stats.ProgressPercentage = decimal.NewFromInt(int64(stats.ApprovedMilestones)).
			Mul(oneHundred).
			DivRound(decimal.NewFromInt(int64(stats.TotalMilestones)), 2)
	}
	return stats
}
