package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Astralabs2050/render-backend-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newStatsEnv(t *testing.T) (*testEnv, *StatsService) {
	t.Helper()
	env := newTestEnv(t)
	return env, NewStatsService(env.store, zap.NewNop())
}

func TestGetStats(t *testing.T) {
	env, stats := newStatsEnv(t)
	ctx := context.Background()
	actor := uuid.New()

	created, _ := env.svc.CreateEscrow(ctx, createInput("1000", "50", "30", "20"))
	_, _ = env.svc.FundEscrow(ctx, created.ID, "tx", actor)
	milestones, _ := env.store.ListMilestones(ctx, created.ID)

	// Approve the first milestone, complete the second.
	_, _ = env.svc.CompleteMilestone(ctx, milestones[0].ID, actor)
	if _, err := env.svc.ApproveMilestone(ctx, milestones[0].ID, nil, actor); err != nil {
		t.Fatalf("ApproveMilestone: %v", err)
	}
	if _, err := env.svc.CompleteMilestone(ctx, milestones[1].ID, actor); err != nil {
		t.Fatalf("CompleteMilestone: %v", err)
	}

	got, err := stats.GetStats(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	if got.TotalMilestones != 3 {
		t.Errorf("total = %d, want 3", got.TotalMilestones)
	}
	if got.ApprovedMilestones != 1 {
		t.Errorf("approved = %d, want 1", got.ApprovedMilestones)
	}
	if got.CompletedMilestones != 1 {
		t.Errorf("completed = %d, want 1 (approved milestones do not count)", got.CompletedMilestones)
	}
	if !got.ReleasedAmount.Equal(pct("500")) {
		t.Errorf("released = %s, want 500", got.ReleasedAmount)
	}
	if !got.RemainingAmount.Equal(pct("500")) {
		t.Errorf("remaining = %s, want 500", got.RemainingAmount)
	}
	// 1 of 3 approved: 33.33 at two decimal places.
	if !got.ProgressPercentage.Equal(pct("33.33")) {
		t.Errorf("progress = %s, want 33.33", got.ProgressPercentage)
	}
}

func TestGetStatsIsReadOnly(t *testing.T) {
	env, stats := newStatsEnv(t)
	ctx := context.Background()

	created, _ := env.svc.CreateEscrow(ctx, createInput("1000", "100"))

	first, err := stats.GetStats(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	second, err := stats.GetStats(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	if first.ApprovedMilestones != second.ApprovedMilestones ||
		!first.ReleasedAmount.Equal(second.ReleasedAmount) ||
		!first.ProgressPercentage.Equal(second.ProgressPercentage) {
		t.Errorf("repeated reads disagree: %+v vs %+v", first, second)
	}

	e, _ := env.store.GetEscrow(ctx, created.ID)
	if e.Status != models.EscrowStatusCreated {
		t.Errorf("GetStats mutated escrow status to %q", e.Status)
	}
}

func TestGetStatsNotFound(t *testing.T) {
	_, stats := newStatsEnv(t)
	_, err := stats.GetStats(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStats unknown id error = %v, want ErrNotFound", err)
	}
}

func TestDeriveStatsEmptyMilestones(t *testing.T) {
	escrow := &models.Escrow{TotalAmount: pct("1000")}
	got := deriveStats(escrow, nil)

	if got.TotalMilestones != 0 {
		t.Errorf("total = %d, want 0", got.TotalMilestones)
	}
	if !got.ProgressPercentage.Equal(decimal.Zero) {
		t.Errorf("progress = %s, want 0", got.ProgressPercentage)
	}
	if !got.RemainingAmount.Equal(pct("1000")) {
		t.Errorf("remaining = %s, want full total", got.RemainingAmount)
	}
}

func TestGetBalanceByChat(t *testing.T) {
	env, stats := newStatsEnv(t)
	ctx := context.Background()
	actor := uuid.New()
	chatID := uuid.New()

	older := createInput("500", "100")
	older.ChatID = &chatID
	olderEscrow, _ := env.svc.CreateEscrow(ctx, older)

	newer := createInput("1000", "50", "50")
	newer.ChatID = &chatID
	newerEscrow, _ := env.svc.CreateEscrow(ctx, newer)

	// Only the older escrow is funded, so it is the active one.
	if _, err := env.svc.FundEscrow(ctx, olderEscrow.ID, "tx", actor); err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}

	snapshot, err := stats.GetBalanceByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("GetBalanceByChat: %v", err)
	}
	if snapshot.ID != olderEscrow.ID {
		t.Errorf("selected escrow %s, want the funded one %s", snapshot.ID, olderEscrow.ID)
	}
	if len(snapshot.Milestones) != 1 {
		t.Errorf("snapshot has %d milestones, want 1", len(snapshot.Milestones))
	}
	if snapshot.Stats.TotalMilestones != 1 {
		t.Errorf("snapshot stats total = %d, want 1", snapshot.Stats.TotalMilestones)
	}

	// Fund the newer escrow too: most recently funded wins.
	if _, err := env.svc.FundEscrow(ctx, newerEscrow.ID, "tx2", actor); err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}
	snapshot, err = stats.GetBalanceByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("GetBalanceByChat: %v", err)
	}
	if snapshot.ID != newerEscrow.ID {
		t.Errorf("selected escrow %s, want most recently funded %s", snapshot.ID, newerEscrow.ID)
	}
}

func TestGetBalanceByChatFallsBackToLatest(t *testing.T) {
	env, stats := newStatsEnv(t)
	ctx := context.Background()
	chatID := uuid.New()

	first := createInput("500", "100")
	first.ChatID = &chatID
	_, _ = env.svc.CreateEscrow(ctx, first)

	time.Sleep(2 * time.Millisecond) // distinct created_at ordering

	second := createInput("1000", "100")
	second.ChatID = &chatID
	secondEscrow, _ := env.svc.CreateEscrow(ctx, second)

	// Nothing funded: the most recently created escrow is selected.
	snapshot, err := stats.GetBalanceByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("GetBalanceByChat: %v", err)
	}
	if snapshot.ID != secondEscrow.ID {
		t.Errorf("selected escrow %s, want most recently created %s", snapshot.ID, secondEscrow.ID)
	}
}

func TestGetBalanceByChatNotFound(t *testing.T) {
	_, stats := newStatsEnv(t)
	_, err := stats.GetBalanceByChat(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBalanceByChat error = %v, want ErrNotFound", err)
	}
}
