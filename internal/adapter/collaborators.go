// Package adapter provides the on-chain collaborator interfaces used during
// settlement and their EVM-backed implementations. Services depend on the
// interfaces; tests substitute in-memory fakes.
package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/launchpad-settlement/internal/types"
)

// EscrowStore holds raised funds and sale tokens until settlement releases them
type EscrowStore interface {
	// Deposit moves funds from the signer into escrow for a project
	Deposit(ctx context.Context, projectID string, asset common.Address, amount *big.Int) error

	// Release pays escrowed funds out to a recipient
	Release(ctx context.Context, projectID string, asset common.Address, recipient common.Address, amount *big.Int) error

	// BalanceOf returns the escrowed balance for a project and asset
	BalanceOf(ctx context.Context, projectID string, asset common.Address) (*big.Int, error)
}

// LiquidityVenue provisions a trading pool from raise proceeds and sale tokens
type LiquidityVenue interface {
	// Provision creates the pool and returns the LP token address and the
	// amount of liquidity minted. minToken and minNative are slippage bounds;
	// the venue reverts rather than fill below them.
	Provision(ctx context.Context, saleToken common.Address, tokenAmount, raiseAmount, minToken, minNative *big.Int) (common.Address, *big.Int, error)
}

// LockVault time-locks LP tokens on behalf of a beneficiary
type LockVault interface {
	// Lock locks the given LP token amount and returns the lock identifier
	Lock(ctx context.Context, lpToken common.Address, amount *big.Int, beneficiary common.Address, durationSecs uint64) (string, error)
}

// VestingDistributor holds sale tokens claimable against a Merkle root
type VestingDistributor interface {
	// SetAllocationRoot publishes the allocation root for claims
	SetAllocationRoot(ctx context.Context, root common.Hash, totalAllocation *big.Int) error

	// Fund transfers sale tokens into the distributor
	Fund(ctx context.Context, saleToken common.Address, amount *big.Int) error
}

// Common error types for chain collaborators

var (
	// ErrProviderUnavailable indicates the RPC provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("rpc provider unavailable")

	// ErrTxReverted indicates the submitted transaction reverted on chain
	ErrTxReverted = fmt.Errorf("transaction reverted")

	// ErrNoSigner indicates no signer key was configured for write operations
	ErrNoSigner = fmt.Errorf("no signer configured")
)

// AdapterError wraps collaborator errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
