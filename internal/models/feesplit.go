package models

import (
	"time"

	"github.com/launchpad-settlement/internal/types"
)

// FeeSplit is the computed treasury/referral-pool/staking split for one source.
// Exactly one row exists per (sourceType, sourceId); retried finalizes upsert
// the same row instead of creating a second split.
type FeeSplit struct {
	SourceID           string           `json:"sourceId"`
	SourceType         types.SourceType `json:"sourceType"`
	TotalAmount        string           `json:"totalAmount"`
	TreasuryAmount     string           `json:"treasuryAmount"`
	ReferralPoolAmount string           `json:"referralPoolAmount"`
	StakingAmount      string           `json:"stakingAmount"`
	Processed          bool             `json:"processed"`
	ProcessedAt        *time.Time       `json:"processedAt,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
}
