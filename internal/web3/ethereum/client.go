package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"OrchKeeper/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// pendingEndRound is passed as _endRound to pendingStake/pendingFees. Current
// BondingManager deployments ignore it; older ones cap it to the current round.
var pendingEndRound = big.NewInt(99999)

const defaultReceiptPollInterval = 2 * time.Second

// Backend is the subset of ethclient.Client the keeper client relies on.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config describes how to construct the Livepeer protocol client.
type Config struct {
	RPCURL              string
	ChainID             uint64
	Network             web3.NetworkDefinition
	ReceiptPollInterval time.Duration
}

// Client implements web3.Client on top of go-ethereum contract bindings.
type Client struct {
	backend      Backend
	rpcClient    *gethrpc.Client
	rounds       *bind.BoundContract
	bonding      *bind.BoundContract
	pollInterval time.Duration
	mu           sync.Mutex
}

// NewClient dials the RPC endpoint and verifies it serves the expected chain.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("rpc url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	expected := cfg.ChainID
	if expected == 0 {
		expected = cfg.Network.ChainID
	}
	if expected != 0 {
		remote, err := eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		if !remote.IsUint64() || remote.Uint64() != expected {
			rpcClient.Close()
			return nil, fmt.Errorf("rpc endpoint serves chain %s, expected %d", remote, expected)
		}
	}

	client, err := NewClientWithBackend(eth, cfg.Network, cfg.ReceiptPollInterval)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.rpcClient = rpcClient
	return client, nil
}

// NewClientWithBackend binds the protocol contracts to an existing backend.
func NewClientWithBackend(backend Backend, network web3.NetworkDefinition, pollInterval time.Duration) (*Client, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	roundsABI, err := abi.JSON(strings.NewReader(roundsManagerABI))
	if err != nil {
		return nil, fmt.Errorf("parse RoundsManager ABI: %w", err)
	}
	bondingABI, err := abi.JSON(strings.NewReader(bondingManagerABI))
	if err != nil {
		return nil, fmt.Errorf("parse BondingManager ABI: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = defaultReceiptPollInterval
	}
	return &Client{
		backend:      backend,
		rounds:       bind.NewBoundContract(network.RoundsManagerAddress(), roundsABI, backend, backend, backend),
		bonding:      bind.NewBoundContract(network.BondingManagerAddress(), bondingABI, backend, backend, backend),
		pollInterval: pollInterval,
	}, nil
}

// Close releases the RPC connection if the client owns one.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// CurrentRound reads the round number and its initialized/locked flags.
func (c *Client) CurrentRound(ctx context.Context) (web3.RoundInfo, error) {
	number, err := callBigInt(ctx, c.rounds, "currentRound")
	if err != nil {
		return web3.RoundInfo{}, err
	}
	initialized, err := callBool(ctx, c.rounds, "currentRoundInitialized")
	if err != nil {
		return web3.RoundInfo{}, err
	}
	locked, err := callBool(ctx, c.rounds, "currentRoundLocked")
	if err != nil {
		return web3.RoundInfo{}, err
	}
	return web3.RoundInfo{Number: number, Initialized: initialized, Locked: locked}, nil
}

// PendingStake returns the delegator's stake including unclaimed rewards.
func (c *Client) PendingStake(ctx context.Context, delegator common.Address) (*big.Int, error) {
	return callBigInt(ctx, c.bonding, "pendingStake", delegator, pendingEndRound)
}

// PendingFees returns the delegator's withdrawable fees in wei.
func (c *Client) PendingFees(ctx context.Context, delegator common.Address) (*big.Int, error) {
	return callBigInt(ctx, c.bonding, "pendingFees", delegator, pendingEndRound)
}

// RewardCalled reports whether reward() already ran for round, based on the
// transcoder's lastRewardRound.
func (c *Client) RewardCalled(ctx context.Context, transcoder common.Address, round *big.Int) (bool, error) {
	if round == nil {
		return false, errors.New("round is required")
	}
	lastRewardRound, err := callBigInt(ctx, c.bonding, "getTranscoder", transcoder)
	if err != nil {
		return false, err
	}
	return lastRewardRound.Cmp(round) == 0, nil
}

// Reward submits BondingManager.reward().
func (c *Client) Reward(ctx context.Context, signer web3.Signer) (common.Hash, error) {
	return c.transact(ctx, signer, "reward")
}

// TransferBond moves amount of bonded stake to recipient. Position hints are
// left as the zero address and the contract walks the pool itself.
func (c *Client) TransferBond(ctx context.Context, signer web3.Signer, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, errors.New("transfer amount must be positive")
	}
	zero := common.Address{}
	return c.transact(ctx, signer, "transferBond", recipient, amount, zero, zero, zero, zero)
}

// WithdrawFees withdraws amount of pending fees to recipient.
func (c *Client) WithdrawFees(ctx context.Context, signer web3.Signer, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, errors.New("withdraw amount must be positive")
	}
	return c.transact(ctx, signer, "withdrawFees", recipient, amount)
}

// AwaitReceipt polls for the receipt of hash until it is mined, the timeout
// elapses (web3.ErrReceiptTimeout) or ctx is cancelled (ctx.Err()).
func (c *Client) AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (web3.Receipt, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return toReceipt(hash, receipt), nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) && waitCtx.Err() == nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return web3.Receipt{TxHash: hash}, ctx.Err()
			}
			if lastErr != nil {
				return web3.Receipt{TxHash: hash}, fmt.Errorf("%w: %s (last error: %v)", web3.ErrReceiptTimeout, hash.Hex(), lastErr)
			}
			return web3.Receipt{TxHash: hash}, fmt.Errorf("%w: %s", web3.ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

func (c *Client) transact(ctx context.Context, signer web3.Signer, method string, params ...any) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errors.New("signer is required")
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("prepare transaction options: %w", err)
	}
	opts.Context = ctx

	tx, err := c.bonding.Transact(opts, method, params...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	return tx.Hash(), nil
}

func call(ctx context.Context, contract *bind.BoundContract, method string, params ...any) ([]any, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return out, nil
}

func callBigInt(ctx context.Context, contract *bind.BoundContract, method string, params ...any) (*big.Int, error) {
	out, err := call(ctx, contract, method, params...)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return nil, fmt.Errorf("call %s: unexpected result type %T", method, out[0])
	}
	return value, nil
}

func callBool(ctx context.Context, contract *bind.BoundContract, method string, params ...any) (bool, error) {
	out, err := call(ctx, contract, method, params...)
	if err != nil {
		return false, err
	}
	value, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("call %s: unexpected result type %T", method, out[0])
	}
	return value, nil
}

func toReceipt(hash common.Hash, receipt *coretypes.Receipt) web3.Receipt {
	out := web3.Receipt{
		TxHash:  hash,
		Status:  receipt.Status,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out
}

var _ web3.Client = (*Client)(nil)
