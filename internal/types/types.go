// Package types provides common type definitions for the settlement engine.
package types

import "time"

// RoundStatus represents the lifecycle state of a sale round
type RoundStatus string

const (
	// RoundUpcoming represents a deployed round whose sale window has not opened
	RoundUpcoming RoundStatus = "upcoming"
	// RoundActive represents a round currently accepting contributions
	RoundActive RoundStatus = "active"
	// RoundEnded represents a round whose sale window has closed
	RoundEnded RoundStatus = "ended"
	// RoundFinalizing represents a round with settlement in progress
	RoundFinalizing RoundStatus = "finalizing"
	// RoundFinalizedSuccess represents a fully settled round
	RoundFinalizedSuccess RoundStatus = "finalized_success"
	// RoundFinalizedFailed represents a round settled as failed (softcap missed)
	RoundFinalizedFailed RoundStatus = "finalized_failed"
	// RoundCancelled represents a round cancelled before settlement began
	RoundCancelled RoundStatus = "cancelled"
)

// statusRank orders statuses along the forward-only lifecycle.
var statusRank = map[RoundStatus]int{
	RoundUpcoming:         0,
	RoundActive:           1,
	RoundEnded:            2,
	RoundFinalizing:       3,
	RoundFinalizedSuccess: 4,
	RoundFinalizedFailed:  4,
	RoundCancelled:        4,
}

// CanTransition reports whether a round status may move from one state to another.
// Status only moves forward; no backward transition exists. Cancellation is only
// reachable before finalizing begins.
func CanTransition(from, to RoundStatus) bool {
	if from == to {
		return false
	}
	switch to {
	case RoundActive:
		return from == RoundUpcoming
	case RoundEnded:
		return from == RoundActive
	case RoundFinalizing:
		return from == RoundEnded
	case RoundFinalizedSuccess:
		return from == RoundFinalizing
	case RoundFinalizedFailed:
		// Failure finalization is valid directly from ended
		return from == RoundEnded
	case RoundCancelled:
		return statusRank[from] < statusRank[RoundFinalizing]
	default:
		return false
	}
}

// IsTerminal reports whether a status admits no further transitions.
func (s RoundStatus) IsTerminal() bool {
	return s == RoundFinalizedSuccess || s == RoundFinalizedFailed || s == RoundCancelled
}

// SourceType identifies the kind of value-generating event behind a fee split
// or referral reward
type SourceType string

const (
	// SourceFairlaunch represents a fairlaunch sale round
	SourceFairlaunch SourceType = "fairlaunch"
	// SourcePresale represents a presale round
	SourcePresale SourceType = "presale"
	// SourceTrade represents a secondary-market trade event
	SourceTrade SourceType = "trade"
)

// ReferralStatus represents the claim state of a referral reward entry
type ReferralStatus string

const (
	// ReferralClaimable represents an earned, unclaimed reward
	ReferralClaimable ReferralStatus = "claimable"
	// ReferralClaimed represents a reward that has been paid out
	ReferralClaimed ReferralStatus = "claimed"
)

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Snapshot holds the totals frozen at the first finalize attempt.
// All payout math derives from these figures, never from live balances.
type Snapshot struct {
	Taken            bool      `json:"taken"`
	TotalRaised      string    `json:"totalRaised"` // integer base units, decimal string
	ParticipantCount int       `json:"participantCount"`
	TakenAt          time.Time `json:"takenAt"`
}

// PhaseFlags mirrors the write-once-true settlement phase markers on a round
type PhaseFlags struct {
	FeePaid       bool `json:"feePaid"`
	LPCreated     bool `json:"lpCreated"`
	VestingFunded bool `json:"vestingFunded"`
	OwnerPaid     bool `json:"ownerPaid"`
}

// AllDone reports whether every settlement phase has completed.
func (f PhaseFlags) AllDone() bool {
	return f.FeePaid && f.LPCreated && f.VestingFunded && f.OwnerPaid
}

// FeePolicy holds a basis-point fee schedule. TreasuryBps+ReferralBps+StakingBps
// must equal TotalBps; validated when the policy is configured, not at split time.
type FeePolicy struct {
	TotalBps    uint64 `json:"totalBps"`
	TreasuryBps uint64 `json:"treasuryBps"`
	ReferralBps uint64 `json:"referralBps"`
	StakingBps  uint64 `json:"stakingBps"`
}

// Validate checks internal consistency of the fee policy.
func (p FeePolicy) Validate() error {
	if p.TotalBps > 10000 {
		return &ServiceError{
			Code:    "INVALID_FEE_POLICY",
			Message: "total fee exceeds 10000 bps",
		}
	}
	if p.TreasuryBps+p.ReferralBps+p.StakingBps != p.TotalBps {
		return &ServiceError{
			Code:    "INVALID_FEE_POLICY",
			Message: "fee sub-buckets do not sum to total bps",
			Details: map[string]interface{}{
				"totalBps":    p.TotalBps,
				"treasuryBps": p.TreasuryBps,
				"referralBps": p.ReferralBps,
				"stakingBps":  p.StakingBps,
			},
		}
	}
	return nil
}
