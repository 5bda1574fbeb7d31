package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Astralabs2050/render-backend-sub000/internal/config"
	"github.com/Astralabs2050/render-backend-sub000/internal/events"
	"github.com/Astralabs2050/render-backend-sub000/internal/models"
	"github.com/Astralabs2050/render-backend-sub000/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentStatus is the settlement adapter's verdict on a transaction hash.
type PaymentStatus string

const (
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
)

// SettlementAdapter is the on-chain collaborator. It supplies facts (contract
// address, payment status) and never mutates escrow state itself.
type SettlementAdapter interface {
	DeployContract(ctx context.Context) (string, error)
	VerifyPayment(ctx context.Context, txHash string) (PaymentStatus, error)
}

// AuditLogger records state transitions. Satisfied by *repositories.AuditRepo.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// MilestoneSpec describes one milestone at escrow creation.
type MilestoneSpec struct {
	Name        string
	Description string
	Percentage  decimal.Decimal
	DueDate     *time.Time
}

type CreateEscrowInput struct {
	CreatorID   uuid.UUID
	MakerID     uuid.UUID
	TotalAmount decimal.Decimal
	Milestones  []MilestoneSpec
	NFTID       *uuid.UUID
	ChatID      *uuid.UUID
}

var oneHundred = decimal.NewFromInt(100)

type EscrowService struct {
	store      repositories.EscrowStore
	audit      AuditLogger
	settlement SettlementAdapter
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewEscrowService(
	store repositories.EscrowStore,
	audit AuditLogger,
	settlement SettlementAdapter,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		store:      store,
		audit:      audit,
		settlement: settlement,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// CreateEscrow validates the milestone breakdown, resolves a contract address
// and persists the escrow with its milestones as one transaction. Nothing is
// persisted when the settlement adapter fails.
func (s *EscrowService) CreateEscrow(ctx context.Context, in CreateEscrowInput) (*models.EscrowWithMilestones, error) {
	if !in.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("total amount must be positive, got %s: %w", in.TotalAmount, ErrInvariantViolation)
	}
	if len(in.Milestones) == 0 {
		return nil, fmt.Errorf("at least one milestone is required: %w", ErrInvariantViolation)
	}
	sum := decimal.Zero
	for i, spec := range in.Milestones {
		if !spec.Percentage.IsPositive() || spec.Percentage.GreaterThan(oneHundred) {
			return nil, fmt.Errorf("milestone %d percentage %s out of range (0, 100]: %w", i, spec.Percentage, ErrInvariantViolation)
		}
		sum = sum.Add(spec.Percentage)
	}
	if !sum.Equal(oneHundred) {
		return nil, fmt.Errorf("milestone percentages sum to %s, expected 100: %w", sum, ErrInvariantViolation)
	}

	contractAddr := s.cfg.EscrowContractAddress
	if contractAddr == "" {
		deployCtx, cancel := context.WithTimeout(ctx, s.cfg.SettlementDeployTimeout)
		defer cancel()
		addr, err := s.settlement.DeployContract(deployCtx)
		if err != nil {
			return nil, fmt.Errorf("deploy escrow contract: %v: %w", err, ErrSettlement)
		}
		contractAddr = addr
	}

	escrow := &models.Escrow{
		ContractAddress: contractAddr,
		TotalAmount:     in.TotalAmount,
		Status:          models.EscrowStatusCreated,
		CreatorID:       in.CreatorID,
		MakerID:         in.MakerID,
		NFTID:           in.NFTID,
		ChatID:          in.ChatID,
	}

	milestones := make([]models.Milestone, len(in.Milestones))
	for i, spec := range in.Milestones {
		milestones[i] = models.Milestone{
			Name:        spec.Name,
			Description: spec.Description,
			Percentage:  spec.Percentage,
			// Amount is fixed at creation and never recomputed. Shift(-2) is
			// an exact base-10 division by 100, so per-escrow amounts always
			// sum back to the total.
			Amount:   in.TotalAmount.Mul(spec.Percentage).Shift(-2),
			Position: i,
			Status:   models.MilestoneStatusPending,
			DueDate:  spec.DueDate,
		}
	}

	err := s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		if err := tx.InsertEscrow(ctx, escrow); err != nil {
			return err
		}
		for i := range milestones {
			milestones[i].EscrowID = escrow.ID
			if err := tx.InsertMilestone(ctx, &milestones[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &in.CreatorID,
		ActorType:   "user",
		Action:      "escrow_created",
		EntityType:  "escrow",
		EntityID:    &escrow.ID,
		Meta: map[string]any{
			"total_amount":     escrow.TotalAmount.String(),
			"milestones":       len(milestones),
			"contract_address": contractAddr,
		},
	})
	s.publishEscrowEvent(ctx, escrow, "", models.EscrowStatusCreated)

	return &models.EscrowWithMilestones{Escrow: *escrow, Milestones: milestones}, nil
}

// FundEscrow records the funding transaction and starts the opening
// milestone. The escrow must still be in created.
func (s *EscrowService) FundEscrow(ctx context.Context, escrowID uuid.UUID, txHash string, actorID uuid.UUID) (*models.Escrow, error) {
	verdict, err := s.settlement.VerifyPayment(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("verify funding tx %s: %v: %w", txHash, err, ErrSettlement)
	}
	if verdict == PaymentFailed {
		return nil, fmt.Errorf("funding tx %s rejected by settlement layer: %w", txHash, ErrSettlement)
	}
	if verdict == PaymentPending {
		s.log.Info("funding tx not yet confirmed on chain, recording anyway",
			zap.String("escrow_id", escrowID.String()), zap.String("tx_hash", txHash))
	}

	var escrow *models.Escrow
	err = s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return s.escrowErr(escrowID, err)
		}
		if e.Status != models.EscrowStatusCreated {
			return fmt.Errorf("escrow %s is %s, only created escrows can be funded: %w", e.ID, e.Status, ErrStateConflict)
		}

		now := time.Now().UTC()
		e.Status = models.EscrowStatusFunded
		e.TransactionHash = &txHash
		e.FundedAt = &now
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}

		opening, err := tx.GetMilestoneByPosition(ctx, e.ID, 0)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			// Defect condition: the escrow is funded but nothing can start.
			// Keep the funding, make the corruption loud.
			s.log.Error("funded escrow has no milestone at position 0",
				zap.String("escrow_id", e.ID.String()))
		case err != nil:
			return err
		case opening.Status == models.MilestoneStatusPending:
			opening.Status = models.MilestoneStatusInProgress
			if err := tx.UpdateMilestone(ctx, opening); err != nil {
				return err
			}
		}

		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, &actorID, "user", "escrow", escrow.ID, models.EscrowStatusCreated, models.EscrowStatusFunded)
	s.publishEscrowEvent(ctx, escrow, models.EscrowStatusCreated, models.EscrowStatusFunded)
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventPaymentReceived,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"tx_hash":   txHash,
		},
	})
	return escrow, nil
}

// CompleteMilestone marks an in-progress milestone as done by the maker.
// Siblings and the escrow itself are untouched.
func (s *EscrowService) CompleteMilestone(ctx context.Context, milestoneID uuid.UUID, actorID uuid.UUID) (*models.Milestone, error) {
	var milestone *models.Milestone
	err := s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		m, err := tx.GetMilestoneForUpdate(ctx, milestoneID)
		if err != nil {
			return s.milestoneErr(milestoneID, err)
		}
		if m.Status != models.MilestoneStatusInProgress {
			return fmt.Errorf("milestone %s is %s, only in-progress milestones can be completed: %w", m.ID, m.Status, ErrStateConflict)
		}
		now := time.Now().UTC()
		m.Status = models.MilestoneStatusCompleted
		m.CompletedAt = &now
		if err := tx.UpdateMilestone(ctx, m); err != nil {
			return err
		}
		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, &actorID, "user", "milestone", milestone.ID, models.MilestoneStatusInProgress, models.MilestoneStatusCompleted)
	s.publishMilestoneEvent(ctx, milestone, models.MilestoneStatusInProgress, models.MilestoneStatusCompleted)
	return milestone, nil
}

// ApproveMilestone releases the milestone's amount and advances the sequence:
// approve, start the next pending milestone, and complete the escrow once
// every milestone is approved — all inside one transaction. The escrow row is
// locked first so concurrent approvals serialize; the loser sees a state
// conflict instead of double-advancing the sequence.
func (s *EscrowService) ApproveMilestone(ctx context.Context, milestoneID uuid.UUID, txHash *string, actorID uuid.UUID) (*models.Milestone, error) {
	var (
		milestone       *models.Milestone
		escrowCompleted *models.Escrow
		startedNext     *models.Milestone
	)
	err := s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		peek, err := tx.GetMilestone(ctx, milestoneID)
		if err != nil {
			return s.milestoneErr(milestoneID, err)
		}
		// Lock order is escrow then milestone everywhere.
		escrow, err := tx.GetEscrowForUpdate(ctx, peek.EscrowID)
		if err != nil {
			return s.escrowErr(peek.EscrowID, err)
		}
		m, err := tx.GetMilestoneForUpdate(ctx, milestoneID)
		if err != nil {
			return s.milestoneErr(milestoneID, err)
		}
		if m.Status != models.MilestoneStatusCompleted {
			return fmt.Errorf("milestone %s is %s, only completed milestones can be approved: %w", m.ID, m.Status, ErrStateConflict)
		}

		now := time.Now().UTC()
		m.Status = models.MilestoneStatusApproved
		m.ApprovedAt = &now
		if txHash != nil && *txHash != "" {
			m.TransactionHash = txHash
		}
		if err := tx.UpdateMilestone(ctx, m); err != nil {
			return err
		}

		next, err := tx.GetMilestoneByPosition(ctx, m.EscrowID, m.Position+1)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			// Last milestone in the sequence.
		case err != nil:
			return err
		case next.Status == models.MilestoneStatusPending:
			next.Status = models.MilestoneStatusInProgress
			if err := tx.UpdateMilestone(ctx, next); err != nil {
				return err
			}
			startedNext = next
		}

		all, err := tx.ListMilestones(ctx, m.EscrowID)
		if err != nil {
			return err
		}
		allApproved := true
		for i := range all {
			if all[i].Status != models.MilestoneStatusApproved {
				allApproved = false
				break
			}
		}
		if allApproved {
			if !models.IsValidEscrowTransition(escrow.Status, models.EscrowStatusCompleted) {
				return fmt.Errorf("escrow %s is %s, cannot complete: %w", escrow.ID, escrow.Status, ErrStateConflict)
			}
			escrow.Status = models.EscrowStatusCompleted
			escrow.CompletedAt = &now
			if err := tx.UpdateEscrow(ctx, escrow); err != nil {
				return err
			}
			escrowCompleted = escrow
		}

		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, &actorID, "user", "milestone", milestone.ID, models.MilestoneStatusCompleted, models.MilestoneStatusApproved)
	s.publishMilestoneEvent(ctx, milestone, models.MilestoneStatusCompleted, models.MilestoneStatusApproved)
	if startedNext != nil {
		s.auditTransition(ctx, nil, "system", "milestone", startedNext.ID, models.MilestoneStatusPending, models.MilestoneStatusInProgress)
		s.publishMilestoneEvent(ctx, startedNext, models.MilestoneStatusPending, models.MilestoneStatusInProgress)
	}
	if escrowCompleted != nil {
		s.auditTransition(ctx, nil, "system", "escrow", escrowCompleted.ID, models.EscrowStatusFunded, models.EscrowStatusCompleted)
		s.publishEscrowEvent(ctx, escrowCompleted, models.EscrowStatusFunded, models.EscrowStatusCompleted)
	}
	return milestone, nil
}

// DisputeMilestone flags a milestone and forces the parent escrow into
// disputed. Allowed from any milestone status except disputed itself; a
// completed escrow can no longer be contested here.
func (s *EscrowService) DisputeMilestone(ctx context.Context, milestoneID uuid.UUID, reason string, actorID uuid.UUID) (*models.Milestone, error) {
	var (
		milestone    *models.Milestone
		oldStatus    string
		escrowMoved  *models.Escrow
		escrowStatus string
	)
	err := s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		peek, err := tx.GetMilestone(ctx, milestoneID)
		if err != nil {
			return s.milestoneErr(milestoneID, err)
		}
		escrow, err := tx.GetEscrowForUpdate(ctx, peek.EscrowID)
		if err != nil {
			return s.escrowErr(peek.EscrowID, err)
		}
		if escrow.Status == models.EscrowStatusCompleted {
			return fmt.Errorf("escrow %s already completed, milestone can no longer be disputed: %w", escrow.ID, ErrStateConflict)
		}
		m, err := tx.GetMilestoneForUpdate(ctx, milestoneID)
		if err != nil {
			return s.milestoneErr(milestoneID, err)
		}
		if !models.IsValidMilestoneTransition(m.Status, models.MilestoneStatusDisputed) {
			return fmt.Errorf("milestone %s is already %s: %w", m.ID, m.Status, ErrStateConflict)
		}

		now := time.Now().UTC()
		oldStatus = m.Status
		m.Status = models.MilestoneStatusDisputed
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		m.Metadata[models.MetaDisputeReason] = reason
		m.Metadata[models.MetaDisputedAt] = now.Format(time.RFC3339)
		if err := tx.UpdateMilestone(ctx, m); err != nil {
			return err
		}

		if escrow.Status != models.EscrowStatusDisputed {
			escrowStatus = escrow.Status
			escrow.Status = models.EscrowStatusDisputed
			if err := tx.UpdateEscrow(ctx, escrow); err != nil {
				return err
			}
			escrowMoved = escrow
		}

		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, &actorID, "user", "milestone", milestone.ID, oldStatus, models.MilestoneStatusDisputed)
	s.publishMilestoneEvent(ctx, milestone, oldStatus, models.MilestoneStatusDisputed)
	if escrowMoved != nil {
		s.auditTransition(ctx, &actorID, "user", "escrow", escrowMoved.ID, escrowStatus, models.EscrowStatusDisputed)
		s.publishEscrowEvent(ctx, escrowMoved, escrowStatus, models.EscrowStatusDisputed)
	}
	return milestone, nil
}

// CancelEscrow stops an escrow that has not completed. Open milestones are
// forced to disputed; funds already earned (completed or approved work) stay
// untouched.
func (s *EscrowService) CancelEscrow(ctx context.Context, escrowID uuid.UUID, reason string, actorID uuid.UUID) (*models.Escrow, error) {
	var (
		escrow    *models.Escrow
		oldStatus string
	)
	err := s.store.InTx(ctx, func(tx repositories.EscrowStore) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return s.escrowErr(escrowID, err)
		}
		if !models.IsValidEscrowTransition(e.Status, models.EscrowStatusCancelled) {
			return fmt.Errorf("escrow %s is %s, cannot be cancelled: %w", e.ID, e.Status, ErrStateConflict)
		}

		now := time.Now().UTC()
		oldStatus = e.Status
		e.Status = models.EscrowStatusCancelled
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return err
		}

		milestones, err := tx.ListMilestones(ctx, e.ID)
		if err != nil {
			return err
		}
		for i := range milestones {
			m := &milestones[i]
			if m.Status != models.MilestoneStatusPending && m.Status != models.MilestoneStatusInProgress {
				continue
			}
			m.Status = models.MilestoneStatusDisputed
			if m.Metadata == nil {
				m.Metadata = map[string]any{}
			}
			m.Metadata[models.MetaCancellationReason] = reason
			m.Metadata[models.MetaCancelledAt] = now.Format(time.RFC3339)
			if err := tx.UpdateMilestone(ctx, m); err != nil {
				return err
			}
		}

		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, &actorID, "user", "escrow", escrow.ID, oldStatus, models.EscrowStatusCancelled)
	s.publishEscrowEvent(ctx, escrow, oldStatus, models.EscrowStatusCancelled)
	return escrow, nil
}

// GetEscrow returns the escrow with its milestones in activation order.
func (s *EscrowService) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*models.EscrowWithMilestones, error) {
	e, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, s.escrowErr(escrowID, err)
	}
	milestones, err := s.store.ListMilestones(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	return &models.EscrowWithMilestones{Escrow: *e, Milestones: milestones}, nil
}

func (s *EscrowService) FindByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]models.Escrow, error) {
	return s.store.ListEscrows(ctx, repositories.EscrowFilter{CreatorID: &creatorID, Limit: limit, Offset: offset})
}

func (s *EscrowService) FindByMaker(ctx context.Context, makerID uuid.UUID, limit, offset int) ([]models.Escrow, error) {
	return s.store.ListEscrows(ctx, repositories.EscrowFilter{MakerID: &makerID, Limit: limit, Offset: offset})
}

func (s *EscrowService) GetEscrowEvents(ctx context.Context, escrowID uuid.UUID) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, "escrow", escrowID, 100, 0)
}

// --- helpers ---

func (s *EscrowService) escrowErr(id uuid.UUID, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("escrow %s: %w", id, ErrNotFound)
	}
	return err
}

func (s *EscrowService) milestoneErr(id uuid.UUID, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("milestone %s: %w", id, ErrNotFound)
	}
	return err
}

func (s *EscrowService) auditTransition(ctx context.Context, actorID *uuid.UUID, actorType, entityType string, entityID uuid.UUID, from, to string) {
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("%s_status_%s_to_%s", entityType, from, to),
		EntityType:  entityType,
		EntityID:    &entityID,
		Meta:        map[string]any{"old_status": from, "new_status": to},
	})
}

func (s *EscrowService) publishEscrowEvent(ctx context.Context, e *models.Escrow, from, to string) {
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id":  e.ID.String(),
			"old_status": from,
			"new_status": to,
		},
	})
}

func (s *EscrowService) publishMilestoneEvent(ctx context.Context, m *models.Milestone, from, to string) {
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventMilestoneStatusChanged,
		Payload: map[string]any{
			"milestone_id": m.ID.String(),
			"escrow_id":    m.EscrowID.String(),
			"order":        m.Position,
			"old_status":   from,
			"new_status":   to,
		},
	})
}
