package adapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/launchpad-settlement/internal/config"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/types"
)

const escrowABIJSON = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"projectId","type":"bytes32"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"release","stateMutability":"nonpayable","inputs":[{"name":"projectId","type":"bytes32"},{"name":"asset","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"projectId","type":"bytes32"},{"name":"asset","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const venueABIJSON = `[
	{"type":"function","name":"provision","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"tokenAmount","type":"uint256"},{"name":"raiseAmount","type":"uint256"},{"name":"minToken","type":"uint256"},{"name":"minNative","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Provisioned","inputs":[{"name":"lpToken","type":"address","indexed":false},{"name":"liquidity","type":"uint256","indexed":false}],"anonymous":false}
]`

const lockABIJSON = `[
	{"type":"function","name":"lock","stateMutability":"nonpayable","inputs":[{"name":"lpToken","type":"address"},{"name":"amount","type":"uint256"},{"name":"beneficiary","type":"address"},{"name":"duration","type":"uint64"}],"outputs":[]},
	{"type":"event","name":"Locked","inputs":[{"name":"lockId","type":"bytes32","indexed":false}],"anonymous":false}
]`

const vestingABIJSON = `[
	{"type":"function","name":"setAllocationRoot","stateMutability":"nonpayable","inputs":[{"name":"root","type":"bytes32"},{"name":"totalAllocation","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"fund","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// EVMCollaborators implements every collaborator interface against the
// protocol's deployed contracts on an EVM chain. All write paths submit a
// signed transaction and wait for the receipt, so a nil error means the
// on-chain effect is final.
type EVMCollaborators struct {
	chainID    types.ChainID
	evmChainID *big.Int
	client     *ethclient.Client
	provider   *RPCProvider

	key  *ecdsa.PrivateKey
	from common.Address

	escrowAddr  common.Address
	venueAddr   common.Address
	lockAddr    common.Address
	vestingAddr common.Address

	escrowABI  abi.ABI
	venueABI   abi.ABI
	lockABI    abi.ABI
	vestingABI abi.ABI
}

// NewEVMCollaborators creates the EVM-backed collaborator set from chain config
func NewEVMCollaborators(ctx context.Context, cfg *config.ChainConfig) (*EVMCollaborators, error) {
	provider, err := NewRPCProvider(cfg.RPCPrimary, cfg.RPCSecondary)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, provider.CurrentURL())
	if err != nil {
		return nil, NewAdapterError(cfg.ID, "NewEVMCollaborators", err, map[string]interface{}{
			"rpcURL": provider.CurrentURL(),
		})
	}

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, NewAdapterError(cfg.ID, "NewEVMCollaborators", err, nil)
	}

	c := &EVMCollaborators{
		chainID:     cfg.ID,
		evmChainID:  evmChainID,
		client:      client,
		provider:    provider,
		escrowAddr:  common.HexToAddress(cfg.EscrowStore),
		venueAddr:   common.HexToAddress(cfg.LiquidityVenue),
		lockAddr:    common.HexToAddress(cfg.LockVault),
		vestingAddr: common.HexToAddress(cfg.VestingDistributor),
	}

	if cfg.SignerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	for name, spec := range map[string]struct {
		json string
		dst  *abi.ABI
	}{
		"escrow":  {escrowABIJSON, &c.escrowABI},
		"venue":   {venueABIJSON, &c.venueABI},
		"lock":    {lockABIJSON, &c.lockABI},
		"vesting": {vestingABIJSON, &c.vestingABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(spec.json))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", name, err)
		}
		*spec.dst = parsed
	}

	logging.WithFields(map[string]interface{}{
		"chain":  cfg.ID,
		"signer": c.from.Hex(),
	}).Info("EVM collaborators initialized")

	return c, nil
}

// Signer returns the signer address used for write operations
func (c *EVMCollaborators) Signer() common.Address {
	return c.from
}

// Close closes the underlying client connection
func (c *EVMCollaborators) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// projectKey derives the bytes32 project key used by the escrow contract
func projectKey(projectID string) common.Hash {
	return crypto.Keccak256Hash([]byte(projectID))
}

// call executes a read-only contract call and unpacks the results
func (c *EVMCollaborators) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		c.provider.RecordFailure()
		return nil, NewAdapterError(c.chainID, method, err, nil)
	}
	c.provider.RecordSuccess()

	return contractABI.Unpack(method, out)
}

// send signs and submits a transaction, then waits for its receipt
func (c *EVMCollaborators) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*ethtypes.Receipt, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, NewAdapterError(c.chainID, "send", err, nil)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, NewAdapterError(c.chainID, "send", err, nil)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, NewAdapterError(c.chainID, "send", err, map[string]interface{}{
			"to": to.Hex(),
		})
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.evmChainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		c.provider.RecordFailure()
		return nil, NewAdapterError(c.chainID, "send", err, map[string]interface{}{
			"txHash": signed.Hash().Hex(),
		})
	}
	c.provider.RecordSuccess()

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return nil, NewAdapterError(c.chainID, "send", err, map[string]interface{}{
			"txHash": signed.Hash().Hex(),
		})
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, NewAdapterError(c.chainID, "send", ErrTxReverted, map[string]interface{}{
			"txHash": signed.Hash().Hex(),
		})
	}

	logging.WithFields(map[string]interface{}{
		"chain":  c.chainID,
		"txHash": signed.Hash().Hex(),
		"block":  receipt.BlockNumber.Uint64(),
	}).Debug("transaction mined")

	return receipt, nil
}

// Deposit moves funds from the signer into escrow for a project
func (c *EVMCollaborators) Deposit(ctx context.Context, projectID string, asset common.Address, amount *big.Int) error {
	data, err := c.escrowABI.Pack("deposit", projectKey(projectID), asset, amount)
	if err != nil {
		return fmt.Errorf("failed to pack deposit: %w", err)
	}

	value := big.NewInt(0)
	if asset == (common.Address{}) {
		value = amount
	}

	_, err = c.send(ctx, c.escrowAddr, value, data)
	return err
}

// Release pays escrowed funds out to a recipient
func (c *EVMCollaborators) Release(ctx context.Context, projectID string, asset common.Address, recipient common.Address, amount *big.Int) error {
	data, err := c.escrowABI.Pack("release", projectKey(projectID), asset, recipient, amount)
	if err != nil {
		return fmt.Errorf("failed to pack release: %w", err)
	}
	_, err = c.send(ctx, c.escrowAddr, nil, data)
	return err
}

// BalanceOf returns the escrowed balance for a project and asset
func (c *EVMCollaborators) BalanceOf(ctx context.Context, projectID string, asset common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.escrowAddr, c.escrowABI, "balanceOf", projectKey(projectID), asset)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", out[0])
	}
	return balance, nil
}

// Provision creates the trading pool and returns the LP token and liquidity minted
func (c *EVMCollaborators) Provision(ctx context.Context, saleToken common.Address, tokenAmount, raiseAmount, minToken, minNative *big.Int) (common.Address, *big.Int, error) {
	if minToken == nil {
		minToken = big.NewInt(0)
	}
	if minNative == nil {
		minNative = big.NewInt(0)
	}
	data, err := c.venueABI.Pack("provision", saleToken, tokenAmount, raiseAmount, minToken, minNative)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack provision: %w", err)
	}

	receipt, err := c.send(ctx, c.venueAddr, raiseAmount, data)
	if err != nil {
		return common.Address{}, nil, err
	}

	event := c.venueABI.Events["Provisioned"]
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != c.venueAddr || len(logEntry.Topics) == 0 || logEntry.Topics[0] != event.ID {
			continue
		}
		out, err := c.venueABI.Unpack("Provisioned", logEntry.Data)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("failed to unpack Provisioned event: %w", err)
		}
		lpToken := out[0].(common.Address)
		liquidity := out[1].(*big.Int)
		return lpToken, liquidity, nil
	}

	return common.Address{}, nil, NewAdapterError(c.chainID, "Provision", fmt.Errorf("no Provisioned event in receipt"), map[string]interface{}{
		"txHash": receipt.TxHash.Hex(),
	})
}

// Lock locks LP tokens and returns the lock identifier
func (c *EVMCollaborators) Lock(ctx context.Context, lpToken common.Address, amount *big.Int, beneficiary common.Address, durationSecs uint64) (string, error) {
	data, err := c.lockABI.Pack("lock", lpToken, amount, beneficiary, durationSecs)
	if err != nil {
		return "", fmt.Errorf("failed to pack lock: %w", err)
	}

	receipt, err := c.send(ctx, c.lockAddr, nil, data)
	if err != nil {
		return "", err
	}

	event := c.lockABI.Events["Locked"]
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != c.lockAddr || len(logEntry.Topics) == 0 || logEntry.Topics[0] != event.ID {
			continue
		}
		out, err := c.lockABI.Unpack("Locked", logEntry.Data)
		if err != nil {
			return "", fmt.Errorf("failed to unpack Locked event: %w", err)
		}
		lockID := out[0].([32]byte)
		return common.BytesToHash(lockID[:]).Hex(), nil
	}

	return "", NewAdapterError(c.chainID, "Lock", fmt.Errorf("no Locked event in receipt"), map[string]interface{}{
		"txHash": receipt.TxHash.Hex(),
	})
}

// SetAllocationRoot publishes the allocation root for claims
func (c *EVMCollaborators) SetAllocationRoot(ctx context.Context, root common.Hash, totalAllocation *big.Int) error {
	data, err := c.vestingABI.Pack("setAllocationRoot", root, totalAllocation)
	if err != nil {
		return fmt.Errorf("failed to pack setAllocationRoot: %w", err)
	}
	_, err = c.send(ctx, c.vestingAddr, nil, data)
	return err
}

// Fund transfers sale tokens into the vesting distributor
func (c *EVMCollaborators) Fund(ctx context.Context, saleToken common.Address, amount *big.Int) error {
	data, err := c.vestingABI.Pack("fund", saleToken, amount)
	if err != nil {
		return fmt.Errorf("failed to pack fund: %w", err)
	}
	_, err = c.send(ctx, c.vestingAddr, nil, data)
	return err
}

