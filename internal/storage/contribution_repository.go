package storage

import (
	"context"
	"fmt"

	"github.com/launchpad-settlement/internal/models"
)

// ContributionRepository handles contribution persistence. Contributions are
// append-only; nothing updates a row once written.
type ContributionRepository struct {
	db *PostgresDB
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(db *PostgresDB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// Create appends a confirmed contribution.
func (r *ContributionRepository) Create(ctx context.Context, c *models.Contribution) error {
	query := `
		INSERT INTO contributions (id, round_id, contributor, amount, referrer, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		c.ID, c.RoundID, c.Contributor, c.Amount, c.Referrer, c.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// ListByRound retrieves all contributions for a round in insertion order.
func (r *ContributionRepository) ListByRound(ctx context.Context, roundID string) ([]*models.Contribution, error) {
	query := `
		SELECT id, round_id, contributor, amount, referrer, ts, created_at
		FROM contributions
		WHERE round_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.ID, &c.RoundID, &c.Contributor, &c.Amount, &c.Referrer, &c.Timestamp, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, &c)
	}
	return contributions, rows.Err()
}

// AggregateByContributor returns each contributor's summed confirmed amount for
// a round, ordered by contributor address for deterministic allocation builds.
func (r *ContributionRepository) AggregateByContributor(ctx context.Context, roundID string) ([]*models.Contribution, error) {
	query := `
		SELECT round_id, contributor, SUM(amount::numeric)::text AS amount
		FROM contributions
		WHERE round_id = $1
		GROUP BY round_id, contributor
		ORDER BY contributor ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate contributions: %w", err)
	}
	defer rows.Close()

	var totals []*models.Contribution
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.RoundID, &c.Contributor, &c.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan contribution total: %w", err)
		}
		totals = append(totals, &c)
	}
	return totals, rows.Err()
}

// CountParticipants counts distinct contributors for a round.
func (r *ContributionRepository) CountParticipants(ctx context.Context, roundID string) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT contributor) FROM contributions WHERE round_id = $1`
	if err := r.db.Pool().QueryRow(ctx, query, roundID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// SumByRound sums confirmed contribution amounts for a round.
func (r *ContributionRepository) SumByRound(ctx context.Context, roundID string) (string, error) {
	var total string
	query := `SELECT COALESCE(SUM(amount::numeric), 0)::text FROM contributions WHERE round_id = $1`
	if err := r.db.Pool().QueryRow(ctx, query, roundID).Scan(&total); err != nil {
		return "", fmt.Errorf("failed to sum contributions: %w", err)
	}
	return total, nil
}
