package ethereum

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"OrchKeeper/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethevent "github.com/ethereum/go-ethereum/event"
)

var testNetwork = web3.NetworkDefinition{
	ChainID:        1337,
	BondingManager: "0x00000000000000000000000000000000000000b0",
	RoundsManager:  "0x00000000000000000000000000000000000000a0",
}

// fakeBackend answers contract calls from canned values keyed by method name
// and records every broadcast transaction.
type fakeBackend struct {
	t       *testing.T
	abis    []abi.ABI
	results map[string][]any
	callErr error

	mu       sync.Mutex
	sent     []*coretypes.Transaction
	receipts map[common.Hash]*coretypes.Receipt
	lookups  int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	rounds, err := abi.JSON(strings.NewReader(roundsManagerABI))
	if err != nil {
		t.Fatalf("parse rounds abi: %v", err)
	}
	bonding, err := abi.JSON(strings.NewReader(bondingManagerABI))
	if err != nil {
		t.Fatalf("parse bonding abi: %v", err)
	}
	return &fakeBackend{
		t:        t,
		abis:     []abi.ABI{rounds, bonding},
		results:  map[string][]any{},
		receipts: map[common.Hash]*coretypes.Receipt{},
	}
}

func (f *fakeBackend) methodFor(data []byte) (*abi.Method, error) {
	for _, parsed := range f.abis {
		if m, err := parsed.MethodById(data); err == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown selector %x", data[:4])
}

func (f *fakeBackend) CallContract(_ context.Context, call gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	method, err := f.methodFor(call.Data)
	if err != nil {
		return nil, err
	}
	values, ok := f.results[method.Name]
	if !ok {
		return nil, fmt.Errorf("no canned result for %s", method.Name)
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*coretypes.Header, error) {
	return &coretypes.Header{Number: big.NewInt(100)}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, gethcore.FilterQuery) ([]coretypes.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, gethcore.FilterQuery, chan<- coretypes.Log) (gethcore.Subscription, error) {
	return gethevent.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if receipt, ok := f.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, gethcore.NotFound
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(int64(testNetwork.ChainID)), nil
}

func (f *fakeBackend) mine(hash common.Hash, status uint64, block int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &coretypes.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(block),
		GasUsed:     21_000,
	}
}

type keyedSigner struct {
	opts *bind.TransactOpts
}

func newKeyedSigner(t *testing.T) *keyedSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(int64(testNetwork.ChainID)))
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	return &keyedSigner{opts: opts}
}

func (s *keyedSigner) Address() common.Address { return s.opts.From }

func (s *keyedSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.opts.From, Signer: s.opts.Signer, Context: ctx}, nil
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	client, err := NewClientWithBackend(backend, testNetwork, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestClientReadsRoundAndBalances(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	stake, _ := new(big.Int).SetString("1083763440135192443657", 10)
	backend.results["currentRound"] = []any{big.NewInt(1000)}
	backend.results["currentRoundInitialized"] = []any{true}
	backend.results["currentRoundLocked"] = []any{false}
	backend.results["pendingStake"] = []any{stake}
	backend.results["pendingFees"] = []any{big.NewInt(30_000_000_000_000_000)}
	client := newTestClient(t, backend)

	ctx := context.Background()
	round, err := client.CurrentRound(ctx)
	if err != nil {
		t.Fatalf("current round: %v", err)
	}
	if round.Number.Int64() != 1000 || !round.Initialized || round.Locked {
		t.Fatalf("unexpected round %+v", round)
	}

	orch := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	gotStake, err := client.PendingStake(ctx, orch)
	if err != nil {
		t.Fatalf("pending stake: %v", err)
	}
	if gotStake.Cmp(stake) != 0 {
		t.Fatalf("unexpected stake %s", gotStake)
	}
	fees, err := client.PendingFees(ctx, orch)
	if err != nil {
		t.Fatalf("pending fees: %v", err)
	}
	if fees.Cmp(big.NewInt(30_000_000_000_000_000)) != 0 {
		t.Fatalf("unexpected fees %s", fees)
	}
}

func TestClientRewardCalledComparesLastRewardRound(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	transcoder := make([]any, 10)
	for i := range transcoder {
		transcoder[i] = big.NewInt(0)
	}
	transcoder[0] = big.NewInt(1000)
	backend.results["getTranscoder"] = transcoder
	client := newTestClient(t, backend)

	orch := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	called, err := client.RewardCalled(context.Background(), orch, big.NewInt(1000))
	if err != nil {
		t.Fatalf("reward called: %v", err)
	}
	if !called {
		t.Fatal("expected reward to be reported for round 1000")
	}
	called, err = client.RewardCalled(context.Background(), orch, big.NewInt(1001))
	if err != nil {
		t.Fatalf("reward called: %v", err)
	}
	if called {
		t.Fatal("round 1001 has not been rewarded")
	}
}

func TestClientReadErrorsSurface(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.callErr = errors.New("connection reset")
	client := newTestClient(t, backend)

	if _, err := client.CurrentRound(context.Background()); err == nil || !strings.Contains(err.Error(), "currentRound") {
		t.Fatalf("expected currentRound error, got %v", err)
	}
}

func TestClientSubmitsEncodedTransactions(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	client := newTestClient(t, backend)
	signer := newKeyedSigner(t)
	ctx := context.Background()
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	rewardHash, err := client.Reward(ctx, signer)
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	bondHash, err := client.TransferBond(ctx, signer, recipient, big.NewInt(42))
	if err != nil {
		t.Fatalf("transfer bond: %v", err)
	}
	feeHash, err := client.WithdrawFees(ctx, signer, recipient, big.NewInt(7))
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}

	if len(backend.sent) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(backend.sent))
	}
	hashes := []common.Hash{rewardHash, bondHash, feeHash}
	names := []string{"reward", "transferBond", "withdrawFees"}
	bonding := backend.abis[1]
	for i, tx := range backend.sent {
		if tx.Hash() != hashes[i] {
			t.Fatalf("tx %d hash mismatch", i)
		}
		if tx.Nonce() != uint64(i) {
			t.Fatalf("tx %d nonce %d", i, tx.Nonce())
		}
		if *tx.To() != testNetwork.BondingManagerAddress() {
			t.Fatalf("tx %d sent to %s", i, tx.To().Hex())
		}
		if !bytes.Equal(tx.Data()[:4], bonding.Methods[names[i]].ID) {
			t.Fatalf("tx %d calls unexpected selector %x", i, tx.Data()[:4])
		}
	}

	args, err := bonding.Methods["transferBond"].Inputs.Unpack(backend.sent[1].Data()[4:])
	if err != nil {
		t.Fatalf("unpack transferBond: %v", err)
	}
	if args[0].(common.Address) != recipient || args[1].(*big.Int).Int64() != 42 {
		t.Fatalf("unexpected transferBond args %v", args)
	}
	if args[2].(common.Address) != (common.Address{}) {
		t.Fatal("position hints must be zero")
	}
}

func TestClientRejectsNonPositiveAmounts(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	client := newTestClient(t, backend)
	signer := newKeyedSigner(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	if _, err := client.TransferBond(context.Background(), signer, recipient, big.NewInt(0)); err == nil {
		t.Fatal("expected zero transfer to be rejected")
	}
	if _, err := client.WithdrawFees(context.Background(), signer, recipient, nil); err == nil {
		t.Fatal("expected nil withdraw amount to be rejected")
	}
	if len(backend.sent) != 0 {
		t.Fatal("nothing should have been broadcast")
	}
}

func TestClientAwaitReceipt(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	client := newTestClient(t, backend)
	hash := common.HexToHash("0x01")

	go func() {
		time.Sleep(20 * time.Millisecond)
		backend.mine(hash, coretypes.ReceiptStatusSuccessful, 77)
	}()

	receipt, err := client.AwaitReceipt(context.Background(), hash, time.Second)
	if err != nil {
		t.Fatalf("await receipt: %v", err)
	}
	if !receipt.Succeeded() || receipt.BlockNumber != 77 || receipt.GasUsed != 21_000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestClientAwaitReceiptTimeoutAndCancel(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	client := newTestClient(t, backend)
	hash := common.HexToHash("0x02")

	_, err := client.AwaitReceipt(context.Background(), hash, 30*time.Millisecond)
	if !errors.Is(err, web3.ErrReceiptTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.AwaitReceipt(ctx, hash, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
