// Package referral maintains the referral reward ledger. Rewards are credited
// once per (source, referee) pair; replays of the same settlement event never
// create duplicate ledger rows or inflate referral counters.
package referral

import (
	"context"
	"math/big"

	"github.com/google/uuid"

	"github.com/launchpad-settlement/internal/amount"
	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/types"
)

// Repository persists referral ledger entries and relationships
type Repository interface {
	InsertEntry(ctx context.Context, entry *models.ReferralLedgerEntry) (bool, error)
	EnsureRelationship(ctx context.Context, referrerID, refereeID string) error
	Activate(ctx context.Context, referrerID, refereeID string) (bool, error)
	GetEntry(ctx context.Context, sourceType types.SourceType, sourceID, refereeID string) (*models.ReferralLedgerEntry, error)
	ListEntriesByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralLedgerEntry, error)
	ListRelationshipsByReferrer(ctx context.Context, referrerID string) ([]*models.ReferralRelationship, error)
	MarkClaimed(ctx context.Context, id string) error
}

// Service credits referral rewards and reports referrer stats
type Service struct {
	repo        Repository
	referralBps uint64
}

// NewService creates a new referral service. referralBps is the reward rate
// applied to the base amount of each qualifying event.
func NewService(repo Repository, referralBps uint64) *Service {
	return &Service{repo: repo, referralBps: referralBps}
}

// RecordReferral credits a referral reward for a settlement event. A nil or
// empty referrer and a self-referral are silent no-ops. Returns the ledger
// entry when one was credited by this call or an earlier one, nil otherwise.
func (s *Service) RecordReferral(ctx context.Context, referrer *string, refereeID string, sourceType types.SourceType, sourceID string, baseAmount *big.Int) (*models.ReferralLedgerEntry, error) {
	if referrer == nil || *referrer == "" || *referrer == refereeID {
		return nil, nil
	}
	referrerID := *referrer

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"referrerId": referrerID,
		"refereeId":  refereeID,
		"sourceType": sourceType,
		"sourceId":   sourceID,
	})

	reward, err := amount.ApplyBps(baseAmount, s.referralBps)
	if err != nil {
		return nil, err
	}

	if err := s.repo.EnsureRelationship(ctx, referrerID, refereeID); err != nil {
		return nil, apperrors.NewDatabaseError("ensure referral relationship", err)
	}

	entry := &models.ReferralLedgerEntry{
		ID:         uuid.New().String(),
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Amount:     amount.Format(reward),
		Status:     types.ReferralClaimable,
	}

	inserted, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		return nil, apperrors.NewDatabaseError("insert referral ledger entry", err)
	}
	if !inserted {
		// Replay of an event already credited. Return the existing row.
		existing, err := s.repo.GetEntry(ctx, sourceType, sourceID, refereeID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("get referral ledger entry", err)
		}
		return existing, nil
	}

	activated, err := s.repo.Activate(ctx, referrerID, refereeID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("activate referral relationship", err)
	}

	logger.WithFields(map[string]interface{}{
		"reward":    entry.Amount,
		"activated": activated,
	}).Info("Referral reward credited")

	return entry, nil
}

// GetStats aggregates a referrer's relationships and ledger entries. Referees
// appearing in both sets are counted once.
func (s *Service) GetStats(ctx context.Context, referrerID string) (*models.ReferralStats, error) {
	relationships, err := s.repo.ListRelationshipsByReferrer(ctx, referrerID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list referral relationships", err)
	}

	entries, err := s.repo.ListEntriesByReferrer(ctx, referrerID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list referral ledger entries", err)
	}

	referees := make(map[string]bool)
	active := 0
	for _, rel := range relationships {
		referees[rel.RefereeID] = true
		if rel.ActivatedAt != nil {
			active++
		}
	}

	total := amount.Zero()
	claimable := amount.Zero()
	claimed := amount.Zero()
	for _, entry := range entries {
		referees[entry.RefereeID] = true

		reward, err := amount.Parse(entry.Amount)
		if err != nil {
			return nil, err
		}
		if total, err = amount.Add(total, reward); err != nil {
			return nil, err
		}
		switch entry.Status {
		case types.ReferralClaimable:
			if claimable, err = amount.Add(claimable, reward); err != nil {
				return nil, err
			}
		case types.ReferralClaimed:
			if claimed, err = amount.Add(claimed, reward); err != nil {
				return nil, err
			}
		}
	}

	return &models.ReferralStats{
		ReferrerID:      referrerID,
		ActiveReferrals: active,
		RefereeCount:    len(referees),
		TotalRewards:    amount.Format(total),
		ClaimableAmount: amount.Format(claimable),
		ClaimedAmount:   amount.Format(claimed),
	}, nil
}

// MarkClaimed transitions a ledger entry to claimed after payout
func (s *Service) MarkClaimed(ctx context.Context, entryID string) error {
	if err := s.repo.MarkClaimed(ctx, entryID); err != nil {
		return apperrors.NewDatabaseError("mark referral claimed", err)
	}
	return nil
}
