package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Astralabs2050/render-backend-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not resolve.
var ErrNotFound = errors.New("record not found")

// EscrowStore is the persistence capability consumed by the services layer.
// InTx runs fn against a store bound to one database transaction; the
// orchestrator relies on it to keep multi-step transitions atomic.
type EscrowStore interface {
	InTx(ctx context.Context, fn func(EscrowStore) error) error

	InsertEscrow(ctx context.Context, e *models.Escrow) error
	InsertMilestone(ctx context.Context, m *models.Milestone) error
	GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
	ListEscrows(ctx context.Context, f EscrowFilter) ([]models.Escrow, error)

	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	GetMilestoneForUpdate(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	GetMilestoneByPosition(ctx context.Context, escrowID uuid.UUID, position int) (*models.Milestone, error)
	ListMilestones(ctx context.Context, escrowID uuid.UUID) ([]models.Milestone, error)
	UpdateMilestone(ctx context.Context, m *models.Milestone) error
}

type EscrowFilter struct {
	CreatorID *uuid.UUID
	MakerID   *uuid.UUID
	ChatID    *uuid.UUID
	Status    *string
	Limit     int
	Offset    int
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type EscrowRepo struct {
	db   querier
	pool *pgxpool.Pool // nil when bound to a transaction
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{db: pool, pool: pool}
}

// InTx begins a transaction and runs fn against a repo bound to it.
// A repo already bound to a transaction reuses it.
func (r *EscrowRepo) InTx(ctx context.Context, fn func(EscrowStore) error) error {
	if r.pool == nil {
		return fn(r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&EscrowRepo{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---- Escrows ----

func (r *EscrowRepo) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO escrows (contract_address, total_amount, status, creator_id, maker_id, nft_id, chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, e.ContractAddress, e.TotalAmount, e.Status, e.CreatorID, e.MakerID, e.NFTID, e.ChatID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

const escrowColumns = `id, contract_address, total_amount, status, creator_id, maker_id,
	       nft_id, chat_id, transaction_hash, funded_at, completed_at, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.ContractAddress, &e.TotalAmount, &e.Status, &e.CreatorID, &e.MakerID,
		&e.NFTID, &e.ChatID, &e.TransactionHash, &e.FundedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) GetEscrow(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

func (r *EscrowRepo) GetEscrowForUpdate(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id))
}

func (r *EscrowRepo) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	_, err := r.db.Exec(ctx, `
		UPDATE escrows SET status = $1, transaction_hash = $2, funded_at = $3, completed_at = $4, updated_at = now()
		WHERE id = $5
	`, e.Status, e.TransactionHash, e.FundedAt, e.CompletedAt, e.ID)
	return err
}

func (r *EscrowRepo) ListEscrows(ctx context.Context, f EscrowFilter) ([]models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.CreatorID != nil {
		where = append(where, fmt.Sprintf("creator_id = $%d", argIdx))
		args = append(args, *f.CreatorID)
		argIdx++
	}
	if f.MakerID != nil {
		where = append(where, fmt.Sprintf("maker_id = $%d", argIdx))
		args = append(args, *f.MakerID)
		argIdx++
	}
	if f.ChatID != nil {
		where = append(where, fmt.Sprintf("chat_id = $%d", argIdx))
		args = append(args, *f.ChatID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []models.Escrow
	for rows.Next() {
		var e models.Escrow
		if err := rows.Scan(&e.ID, &e.ContractAddress, &e.TotalAmount, &e.Status, &e.CreatorID, &e.MakerID,
			&e.NFTID, &e.ChatID, &e.TransactionHash, &e.FundedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}

// ---- Milestones ----

func (r *EscrowRepo) InsertMilestone(ctx context.Context, m *models.Milestone) error {
	metaBytes, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO milestones (escrow_id, name, description, percentage, amount, position, status, due_date, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, m.EscrowID, m.Name, m.Description, m.Percentage, m.Amount, m.Position, m.Status, m.DueDate, metaBytes,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

const milestoneColumns = `id, escrow_id, name, description, percentage, amount, position, status,
	       due_date, completed_at, approved_at, transaction_hash, metadata, created_at, updated_at`

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	var metaBytes []byte
	err := row.Scan(&m.ID, &m.EscrowID, &m.Name, &m.Description, &m.Percentage, &m.Amount, &m.Position, &m.Status,
		&m.DueDate, &m.CompletedAt, &m.ApprovedAt, &m.TransactionHash, &metaBytes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(metaBytes) > 0 {
		_ = json.Unmarshal(metaBytes, &m.Metadata)
	}
	return &m, nil
}

func (r *EscrowRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
}

func (r *EscrowRepo) GetMilestoneForUpdate(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1 FOR UPDATE`, id))
}

func (r *EscrowRepo) GetMilestoneByPosition(ctx context.Context, escrowID uuid.UUID, position int) (*models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE escrow_id = $1 AND position = $2 FOR UPDATE
	`, escrowID, position))
}

func (r *EscrowRepo) ListMilestones(ctx context.Context, escrowID uuid.UUID) ([]models.Milestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE escrow_id = $1 ORDER BY position ASC
	`, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		var metaBytes []byte
		if err := rows.Scan(&m.ID, &m.EscrowID, &m.Name, &m.Description, &m.Percentage, &m.Amount, &m.Position, &m.Status,
			&m.DueDate, &m.CompletedAt, &m.ApprovedAt, &m.TransactionHash, &metaBytes, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &m.Metadata)
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (r *EscrowRepo) UpdateMilestone(ctx context.Context, m *models.Milestone) error {
	metaBytes, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE milestones SET status = $1, completed_at = $2, approved_at = $3, transaction_hash = $4, metadata = $5, updated_at = now()
		WHERE id = $6
	`, m.Status, m.CompletedAt, m.ApprovedAt, m.TransactionHash, metaBytes, m.ID)
	return err
}
