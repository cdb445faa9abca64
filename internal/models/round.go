// Package models defines the persisted entities of the settlement engine.
package models

import (
	"time"

	"github.com/launchpad-settlement/internal/types"
)

// Round represents one sale event (fairlaunch or presale instance).
// Amounts are integer base units carried as decimal strings.
type Round struct {
	ID        string            `json:"id"`
	Chain     types.ChainID     `json:"chain"`
	Source    types.SourceType  `json:"source"`
	Status    types.RoundStatus `json:"status"`
	Owner     string            `json:"owner"`     // project owner address
	SaleToken string            `json:"saleToken"` // sale token contract address

	SoftCap         string `json:"softCap"`
	HardCap         string `json:"hardCap"`
	MinContribution string `json:"minContribution"`
	MaxContribution string `json:"maxContribution"`
	TokensForSale   string `json:"tokensForSale"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	LiquidityBps   uint64        `json:"liquidityBps"`
	LPLockDuration time.Duration `json:"lpLockDuration"`

	// TotalRaised is the sum of confirmed contributions; it grows only while
	// the round is active.
	TotalRaised string `json:"totalRaised"`

	// Write-once-true phase flags, never reset.
	FeePaid       bool `json:"feePaid"`
	LPCreated     bool `json:"lpCreated"`
	VestingFunded bool `json:"vestingFunded"`
	OwnerPaid     bool `json:"ownerPaid"`

	// Write-once-true escrow release markers. Set the moment funds leave
	// escrow mid-phase, before the collaborator call, so a resumed phase
	// never releases the same leg twice.
	LPNativeReleased      bool `json:"lpNativeReleased"`
	LPTokenReleased       bool `json:"lpTokenReleased"`
	VestingTokensReleased bool `json:"vestingTokensReleased"`

	// Snapshot captured exactly once at the first finalize attempt.
	SnapshotTaken            bool       `json:"snapshotTaken"`
	SnapshotTotalRaised      string     `json:"snapshotTotalRaised"`
	SnapshotParticipantCount int        `json:"snapshotParticipantCount"`
	SnapshotTakenAt          *time.Time `json:"snapshotTakenAt,omitempty"`

	// Settlement artifacts recorded as phases complete.
	AllocationRoot string `json:"allocationRoot,omitempty"` // hex
	LPLockID       string `json:"lpLockId,omitempty"`
	BurnedAmount   string `json:"burnedAmount"`
	FailReason     string `json:"failReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PhaseFlags assembles the phase markers for result reporting.
func (r *Round) PhaseFlags() types.PhaseFlags {
	return types.PhaseFlags{
		FeePaid:       r.FeePaid,
		LPCreated:     r.LPCreated,
		VestingFunded: r.VestingFunded,
		OwnerPaid:     r.OwnerPaid,
	}
}

// Snapshot assembles the frozen totals for payout math.
func (r *Round) Snapshot() types.Snapshot {
	s := types.Snapshot{
		Taken:            r.SnapshotTaken,
		TotalRaised:      r.SnapshotTotalRaised,
		ParticipantCount: r.SnapshotParticipantCount,
	}
	if r.SnapshotTakenAt != nil {
		s.TakenAt = *r.SnapshotTakenAt
	}
	return s
}
