package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/launchpad-settlement/internal/models"
)

// EscrowRepository handles escrow record persistence. One record exists per
// (project_id, asset); deposits accumulate into it and release happens once.
type EscrowRepository struct {
	db *PostgresDB
}

// NewEscrowRepository creates a new escrow repository
func NewEscrowRepository(db *PostgresDB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// AddDeposit records a verified deposit, accumulating into the existing record
// for the same project and asset.
func (r *EscrowRepository) AddDeposit(ctx context.Context, projectID, asset, amount string) error {
	query := `
		INSERT INTO escrow_records (project_id, asset, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, asset)
		DO UPDATE SET
			amount = (escrow_records.amount::numeric + EXCLUDED.amount::numeric)::text,
			updated_at = now()
	`
	_, err := r.db.Pool().Exec(ctx, query, projectID, asset, amount)
	if err != nil {
		return fmt.Errorf("failed to add escrow deposit: %w", err)
	}
	return nil
}

// Get retrieves the escrow record for a project and asset
func (r *EscrowRepository) Get(ctx context.Context, projectID, asset string) (*models.EscrowRecord, error) {
	query := `
		SELECT project_id, asset, amount, released_to, released_at, created_at, updated_at
		FROM escrow_records
		WHERE project_id = $1 AND asset = $2
	`
	var rec models.EscrowRecord
	err := r.db.Pool().QueryRow(ctx, query, projectID, asset).Scan(
		&rec.ProjectID, &rec.Asset, &rec.Amount,
		&rec.ReleasedTo, &rec.ReleasedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get escrow record: %w", err)
	}
	return &rec, nil
}

// MarkReleased records the release of escrowed funds. Returns true only when
// this call performed the release; an already-released record is left intact.
func (r *EscrowRepository) MarkReleased(ctx context.Context, projectID, asset, recipient string) (bool, error) {
	query := `
		UPDATE escrow_records
		SET released_to = $3, released_at = now(), updated_at = now()
		WHERE project_id = $1 AND asset = $2 AND released_at IS NULL
	`
	result, err := r.db.Pool().Exec(ctx, query, projectID, asset, recipient)
	if err != nil {
		return false, fmt.Errorf("failed to mark escrow released: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByProject retrieves all escrow records for a project.
func (r *EscrowRepository) ListByProject(ctx context.Context, projectID string) ([]*models.EscrowRecord, error) {
	query := `
		SELECT project_id, asset, amount, released_to, released_at, created_at, updated_at
		FROM escrow_records
		WHERE project_id = $1
		ORDER BY asset ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrow records: %w", err)
	}
	defer rows.Close()

	var records []*models.EscrowRecord
	for rows.Next() {
		var rec models.EscrowRecord
		if err := rows.Scan(&rec.ProjectID, &rec.Asset, &rec.Amount,
			&rec.ReleasedTo, &rec.ReleasedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escrow record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
