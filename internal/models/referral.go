package models

import (
	"time"

	"github.com/launchpad-settlement/internal/types"
)

// ReferralLedgerEntry records one referral reward. Uniqueness is keyed by
// (sourceType, sourceId, refereeId); a duplicate insert attempt is a no-op.
type ReferralLedgerEntry struct {
	ID         string               `json:"id"`
	ReferrerID string               `json:"referrerId"`
	RefereeID  string               `json:"refereeId"`
	SourceType types.SourceType     `json:"sourceType"`
	SourceID   string               `json:"sourceId"`
	Amount     string               `json:"amount"`
	Status     types.ReferralStatus `json:"status"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// ReferralRelationship tracks an explicit referrer/referee pair. ActivatedAt is
// set once, on the first ledger entry recorded for the pair.
type ReferralRelationship struct {
	ReferrerID  string     `json:"referrerId"`
	RefereeID   string     `json:"refereeId"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ReferralStats aggregates a referrer's activity across relationship rows and
// ledger rows.
type ReferralStats struct {
	ReferrerID      string `json:"referrerId"`
	ActiveReferrals int    `json:"activeReferrals"`
	RefereeCount    int    `json:"refereeCount"`
	TotalRewards    string `json:"totalRewards"`
	ClaimableAmount string `json:"claimableAmount"`
	ClaimedAmount   string `json:"claimedAmount"`
}
