package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RoundStatus
		to      RoundStatus
		allowed bool
	}{
		{"upcoming to active", RoundUpcoming, RoundActive, true},
		{"active to ended", RoundActive, RoundEnded, true},
		{"ended to finalizing", RoundEnded, RoundFinalizing, true},
		{"finalizing to success", RoundFinalizing, RoundFinalizedSuccess, true},
		{"ended to failed", RoundEnded, RoundFinalizedFailed, true},
		{"upcoming to cancelled", RoundUpcoming, RoundCancelled, true},
		{"active to cancelled", RoundActive, RoundCancelled, true},
		{"ended to cancelled", RoundEnded, RoundCancelled, true},

		{"no skipping to ended", RoundUpcoming, RoundEnded, false},
		{"no skipping to finalizing", RoundActive, RoundFinalizing, false},
		{"no backward to active", RoundEnded, RoundActive, false},
		{"no backward to upcoming", RoundActive, RoundUpcoming, false},
		{"no self transition", RoundActive, RoundActive, false},
		{"no cancel while finalizing", RoundFinalizing, RoundCancelled, false},
		{"no cancel after success", RoundFinalizedSuccess, RoundCancelled, false},
		{"no success from ended", RoundEnded, RoundFinalizedSuccess, false},
		{"no failure from finalizing", RoundFinalizing, RoundFinalizedFailed, false},
		{"terminal success is final", RoundFinalizedSuccess, RoundFinalizing, false},
		{"terminal failed is final", RoundFinalizedFailed, RoundEnded, false},
		{"cancelled is final", RoundCancelled, RoundActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, RoundFinalizedSuccess.IsTerminal())
	assert.True(t, RoundFinalizedFailed.IsTerminal())
	assert.True(t, RoundCancelled.IsTerminal())
	assert.False(t, RoundUpcoming.IsTerminal())
	assert.False(t, RoundActive.IsTerminal())
	assert.False(t, RoundEnded.IsTerminal())
	assert.False(t, RoundFinalizing.IsTerminal())
}

func TestTerminalStatusesAdmitNoTransitions(t *testing.T) {
	all := []RoundStatus{
		RoundUpcoming, RoundActive, RoundEnded, RoundFinalizing,
		RoundFinalizedSuccess, RoundFinalizedFailed, RoundCancelled,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s should be blocked", from, to)
		}
	}
}

func TestFeePolicyValidate(t *testing.T) {
	valid := FeePolicy{TotalBps: 500, TreasuryBps: 250, ReferralBps: 200, StakingBps: 50}
	require.NoError(t, valid.Validate())

	mismatched := FeePolicy{TotalBps: 500, TreasuryBps: 250, ReferralBps: 200, StakingBps: 100}
	require.Error(t, mismatched.Validate())

	excessive := FeePolicy{TotalBps: 10001, TreasuryBps: 10001}
	require.Error(t, excessive.Validate())

	zero := FeePolicy{}
	require.NoError(t, zero.Validate())
}

func TestPhaseFlagsAllDone(t *testing.T) {
	assert.False(t, PhaseFlags{}.AllDone())
	assert.False(t, PhaseFlags{FeePaid: true, LPCreated: true, VestingFunded: true}.AllDone())
	assert.True(t, PhaseFlags{FeePaid: true, LPCreated: true, VestingFunded: true, OwnerPaid: true}.AllDone())
}
