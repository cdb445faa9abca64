package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// ReferralRepository handles referral ledger and relationship persistence.
type ReferralRepository struct {
	db *PostgresDB
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db *PostgresDB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// InsertEntry inserts a ledger entry. Uniqueness is keyed by
// (source_type, source_id, referee_id); a conflicting insert is swallowed and
// reported as inserted=false so callers can guard one-shot side effects.
func (r *ReferralRepository) InsertEntry(ctx context.Context, entry *models.ReferralLedgerEntry) (bool, error) {
	query := `
		INSERT INTO referral_ledger (id, referrer_id, referee_id, source_type, source_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_type, source_id, referee_id) DO NOTHING
	`
	result, err := r.db.Pool().Exec(ctx, query,
		entry.ID, entry.ReferrerID, entry.RefereeID,
		entry.SourceType, entry.SourceID, entry.Amount, entry.Status)
	if err != nil {
		return false, fmt.Errorf("failed to insert referral ledger entry: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// EnsureRelationship upserts the (referrer, referee) relationship row without
// touching activation.
func (r *ReferralRepository) EnsureRelationship(ctx context.Context, referrerID, refereeID string) error {
	query := `
		INSERT INTO referral_relationships (referrer_id, referee_id)
		VALUES ($1, $2)
		ON CONFLICT (referrer_id, referee_id) DO NOTHING
	`
	_, err := r.db.Pool().Exec(ctx, query, referrerID, refereeID)
	if err != nil {
		return fmt.Errorf("failed to ensure referral relationship: %w", err)
	}
	return nil
}

// Activate sets activated_at on the relationship if unset. Returns true only
// when this call performed the activation, so the active-referral counter is
// incremented exactly once per pair.
func (r *ReferralRepository) Activate(ctx context.Context, referrerID, refereeID string) (bool, error) {
	query := `
		UPDATE referral_relationships
		SET activated_at = now()
		WHERE referrer_id = $1 AND referee_id = $2 AND activated_at IS NULL
	`
	result, err := r.db.Pool().Exec(ctx, query, referrerID, refereeID)
	if err != nil {
		return false, fmt.Errorf("failed to activate referral relationship: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetEntry retrieves a ledger entry by its uniqueness key
func (r *ReferralRepository) GetEntry(ctx context.Context, sourceType types.SourceType, sourceID, refereeID string) (*models.ReferralLedgerEntry, error) {
	query := `
		SELECT id, referrer_id, referee_id, source_type, source_id, amount, status, created_at
		FROM referral_ledger
		WHERE source_type = $1 AND source_id = $2 AND referee_id = $3
	`
	var e models.ReferralLedgerEntry
	err := r.db.Pool().QueryRow(ctx, query, sourceType, sourceID, refereeID).Scan(
		&e.ID, &e.ReferrerID, &e.RefereeID, &e.SourceType, &e.SourceID,
		&e.Amount, &e.Status, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get referral ledger entry: %w", err)
	}
	return &e, nil
}

// ListEntriesByReferrer retrieves all ledger entries credited to a referrer.
func (r *ReferralRepository) ListEntriesByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralLedgerEntry, error) {
	query := `
		SELECT id, referrer_id, referee_id, source_type, source_id, amount, status, created_at
		FROM referral_ledger
		WHERE referrer_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ReferralLedgerEntry
	for rows.Next() {
		var e models.ReferralLedgerEntry
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.RefereeID, &e.SourceType, &e.SourceID,
			&e.Amount, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListRelationshipsByReferrer retrieves all relationship rows for a referrer.
func (r *ReferralRepository) ListRelationshipsByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralRelationship, error) {
	query := `
		SELECT referrer_id, referee_id, activated_at, created_at
		FROM referral_relationships
		WHERE referrer_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool().Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral relationships: %w", err)
	}
	defer rows.Close()

	var rels []*models.ReferralRelationship
	for rows.Next() {
		var rel models.ReferralRelationship
		if err := rows.Scan(&rel.ReferrerID, &rel.RefereeID, &rel.ActivatedAt, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral relationship: %w", err)
		}
		rels = append(rels, &rel)
	}
	return rels, rows.Err()
}

// MarkClaimed transitions a ledger entry to claimed.
func (r *ReferralRepository) MarkClaimed(ctx context.Context, id string) error {
	query := `UPDATE referral_ledger SET status = $2 WHERE id = $1 AND status = $3`
	result, err := r.db.Pool().Exec(ctx, query, id, types.ReferralClaimed, types.ReferralClaimable)
	if err != nil {
		return fmt.Errorf("failed to mark referral claimed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("referral ledger entry not claimable: %s", id)
	}
	return nil
}
