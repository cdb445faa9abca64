// Package escrow coordinates the on-chain escrow store with its off-chain
// record. Deposits are verified by balance delta, and releases are guarded so
// a retried settlement phase cannot pay the same funds out twice.
package escrow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/launchpad-settlement/internal/adapter"
	"github.com/launchpad-settlement/internal/amount"
	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/models"
)

// RecordRepository persists escrow records
type RecordRepository interface {
	AddDeposit(ctx context.Context, projectID, asset, amount string) error
	Get(ctx context.Context, projectID, asset string) (*models.EscrowRecord, error)
	MarkReleased(ctx context.Context, projectID, asset, recipient string) (bool, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.EscrowRecord, error)
}

// Coordinator pairs the on-chain escrow store with its off-chain ledger
type Coordinator struct {
	store adapter.EscrowStore
	repo  RecordRepository
}

// NewCoordinator creates a new escrow coordinator
func NewCoordinator(store adapter.EscrowStore, repo RecordRepository) *Coordinator {
	return &Coordinator{store: store, repo: repo}
}

// DepositAndVerify deposits funds into escrow and asserts the on-chain balance
// moved by exactly the deposited amount. A delta mismatch means a fee-on-
// transfer or rebasing asset slipped in, and settlement must not proceed on it.
func (c *Coordinator) DepositAndVerify(ctx context.Context, projectID string, asset common.Address, value *big.Int) error {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"projectId": projectID,
		"asset":     asset.Hex(),
		"amount":    amount.Format(value),
	})

	before, err := c.store.BalanceOf(ctx, projectID, asset)
	if err != nil {
		return apperrors.NewCollaboratorError("escrow store", err)
	}

	if err := c.store.Deposit(ctx, projectID, asset, value); err != nil {
		return apperrors.NewCollaboratorError("escrow store", err)
	}

	after, err := c.store.BalanceOf(ctx, projectID, asset)
	if err != nil {
		return apperrors.NewCollaboratorError("escrow store", err)
	}

	expected, err := amount.Add(before, value)
	if err != nil {
		return err
	}
	if after.Cmp(expected) != 0 {
		return apperrors.NewEscrowIntegrityError(projectID, amount.Format(expected), amount.Format(after))
	}

	if err := c.repo.AddDeposit(ctx, projectID, asset.Hex(), amount.Format(value)); err != nil {
		return apperrors.NewDatabaseError("add escrow deposit", err)
	}

	logger.Info("Escrow deposit verified")
	return nil
}

// ReleaseTo releases the full escrowed balance to a recipient. Idempotent: if
// the balance is already zero the release is treated as done and the call
// succeeds without an on-chain write.
func (c *Coordinator) ReleaseTo(ctx context.Context, projectID string, asset common.Address, recipient common.Address) (*big.Int, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"projectId": projectID,
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
	})

	balance, err := c.store.BalanceOf(ctx, projectID, asset)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("escrow store", err)
	}

	if balance.Sign() == 0 {
		logger.Info("Escrow already empty, treating release as done")
		return amount.Zero(), nil
	}

	if err := c.store.Release(ctx, projectID, asset, recipient, balance); err != nil {
		return nil, apperrors.NewCollaboratorError("escrow store", err)
	}

	released, err := c.repo.MarkReleased(ctx, projectID, asset.Hex(), recipient.Hex())
	if err != nil {
		return nil, apperrors.NewDatabaseError("mark escrow released", err)
	}

	logger.WithFields(map[string]interface{}{
		"amount":      amount.Format(balance),
		"firstRecord": released,
	}).Info("Escrow released")

	return balance, nil
}

// ReleaseAmount releases a specific amount from escrow to a recipient. The
// remaining balance stays escrowed for later phases.
func (c *Coordinator) ReleaseAmount(ctx context.Context, projectID string, asset common.Address, recipient common.Address, value *big.Int) error {
	if value.Sign() == 0 {
		return nil
	}

	balance, err := c.store.BalanceOf(ctx, projectID, asset)
	if err != nil {
		return apperrors.NewCollaboratorError("escrow store", err)
	}
	if balance.Cmp(value) < 0 {
		return apperrors.NewEscrowIntegrityError(projectID, amount.Format(value), amount.Format(balance))
	}

	if err := c.store.Release(ctx, projectID, asset, recipient, value); err != nil {
		return apperrors.NewCollaboratorError("escrow store", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"projectId": projectID,
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.Format(value),
	}).Info("Escrow partial release")

	return nil
}

// Balance returns the current on-chain escrowed balance
func (c *Coordinator) Balance(ctx context.Context, projectID string, asset common.Address) (*big.Int, error) {
	balance, err := c.store.BalanceOf(ctx, projectID, asset)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("escrow store", err)
	}
	return balance, nil
}
