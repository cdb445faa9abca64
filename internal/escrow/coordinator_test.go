package escrow

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/models"
)

// fakeEscrowStore simulates the on-chain escrow contract. skim shaves a cut
// off every deposit to model a fee-on-transfer asset.
type fakeEscrowStore struct {
	balances map[string]*big.Int
	released map[string]*big.Int
	skim     *big.Int
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{
		balances: make(map[string]*big.Int),
		released: make(map[string]*big.Int),
	}
}

func storeKey(projectID string, asset common.Address) string {
	return projectID + ":" + asset.Hex()
}

func (s *fakeEscrowStore) balance(projectID string, asset common.Address) *big.Int {
	if b, ok := s.balances[storeKey(projectID, asset)]; ok {
		return b
	}
	return new(big.Int)
}

func (s *fakeEscrowStore) Deposit(ctx context.Context, projectID string, asset common.Address, value *big.Int) error {
	credited := new(big.Int).Set(value)
	if s.skim != nil {
		credited.Sub(credited, s.skim)
	}
	s.balances[storeKey(projectID, asset)] = new(big.Int).Add(s.balance(projectID, asset), credited)
	return nil
}

func (s *fakeEscrowStore) Release(ctx context.Context, projectID string, asset common.Address, recipient common.Address, value *big.Int) error {
	balance := s.balance(projectID, asset)
	if balance.Cmp(value) < 0 {
		return fmt.Errorf("insufficient escrow balance")
	}
	s.balances[storeKey(projectID, asset)] = new(big.Int).Sub(balance, value)

	key := recipient.Hex()
	if s.released[key] == nil {
		s.released[key] = new(big.Int)
	}
	s.released[key].Add(s.released[key], value)
	return nil
}

func (s *fakeEscrowStore) BalanceOf(ctx context.Context, projectID string, asset common.Address) (*big.Int, error) {
	return new(big.Int).Set(s.balance(projectID, asset)), nil
}

// fakeRecordRepo is an in-memory RecordRepository.
type fakeRecordRepo struct {
	deposits map[string]string
	releases map[string]bool
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{deposits: make(map[string]string), releases: make(map[string]bool)}
}

func (r *fakeRecordRepo) AddDeposit(ctx context.Context, projectID, asset, amount string) error {
	r.deposits[projectID+":"+asset] = amount
	return nil
}

func (r *fakeRecordRepo) Get(ctx context.Context, projectID, asset string) (*models.EscrowRecord, error) {
	return nil, nil
}

func (r *fakeRecordRepo) MarkReleased(ctx context.Context, projectID, asset, recipient string) (bool, error) {
	key := projectID + ":" + asset
	if r.releases[key] {
		return false, nil
	}
	r.releases[key] = true
	return true, nil
}

func (r *fakeRecordRepo) ListByProject(ctx context.Context, projectID string) ([]*models.EscrowRecord, error) {
	return nil, nil
}

var testAsset = common.HexToAddress("0x00000000000000000000000000000000000000ee")

func TestDepositAndVerify(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())

	err := coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(1000))
	require.NoError(t, err)

	balance, err := coord.Balance(context.Background(), "round-1", testAsset)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Int64())
}

func TestDepositAndVerifyDetectsBalanceDeltaMismatch(t *testing.T) {
	store := newFakeEscrowStore()
	store.skim = big.NewInt(1)
	coord := NewCoordinator(store, newFakeRecordRepo())

	err := coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(1000))
	require.Error(t, err)

	catErr := apperrors.Categorize(err)
	assert.Equal(t, apperrors.CodeEscrowIntegrity, catErr.Code)
}

func TestReleaseToTransfersFullBalance(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())
	recipient := common.HexToAddress("0x01")

	require.NoError(t, coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(500)))

	released, err := coord.ReleaseTo(context.Background(), "round-1", testAsset, recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(500), released.Int64())
	assert.Equal(t, int64(500), store.released[recipient.Hex()].Int64())
}

func TestReleaseToEmptyEscrowIsNoOp(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())
	recipient := common.HexToAddress("0x01")

	released, err := coord.ReleaseTo(context.Background(), "round-1", testAsset, recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released.Int64())
	assert.Empty(t, store.released)
}

func TestReleaseToIsIdempotent(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())
	recipient := common.HexToAddress("0x01")

	require.NoError(t, coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(500)))

	_, err := coord.ReleaseTo(context.Background(), "round-1", testAsset, recipient)
	require.NoError(t, err)

	// Second release finds an empty escrow and pays nothing.
	released, err := coord.ReleaseTo(context.Background(), "round-1", testAsset, recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(0), released.Int64())
	assert.Equal(t, int64(500), store.released[recipient.Hex()].Int64())
}

func TestReleaseAmountPartial(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())
	recipient := common.HexToAddress("0x01")

	require.NoError(t, coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(1000)))

	require.NoError(t, coord.ReleaseAmount(context.Background(), "round-1", testAsset, recipient, big.NewInt(300)))

	balance, err := coord.Balance(context.Background(), "round-1", testAsset)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance.Int64())
	assert.Equal(t, int64(300), store.released[recipient.Hex()].Int64())
}

func TestReleaseAmountZeroIsNoOp(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())

	require.NoError(t, coord.ReleaseAmount(context.Background(), "round-1", testAsset, common.HexToAddress("0x01"), new(big.Int)))
	assert.Empty(t, store.released)
}

func TestReleaseAmountExceedingBalance(t *testing.T) {
	store := newFakeEscrowStore()
	coord := NewCoordinator(store, newFakeRecordRepo())

	require.NoError(t, coord.DepositAndVerify(context.Background(), "round-1", testAsset, big.NewInt(100)))

	err := coord.ReleaseAmount(context.Background(), "round-1", testAsset, common.HexToAddress("0x01"), big.NewInt(101))
	require.Error(t, err)

	catErr := apperrors.Categorize(err)
	assert.Equal(t, apperrors.CodeEscrowIntegrity, catErr.Code)
}
