package keeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"OrchKeeper/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	orchestratorAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stakeRecipient   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	feeRecipient     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal " + s)
	}
	return v
}

func defaultThresholds() Thresholds {
	return Thresholds{
		MinRetainedStake:     wei("1000000000000000000"),
		FeeWithdrawThreshold: wei("30000000000000000"),
		PollInterval:         time.Minute,
		ReceiptTimeout:       time.Second,
		StakeRecipient:       stakeRecipient,
		FeeRecipient:         feeRecipient,
		Orchestrator:         orchestratorAddr,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct{ addr common.Address }

func (s fakeSigner) Address() common.Address { return s.addr }

func (s fakeSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.addr, Context: ctx}, nil
}

type submission struct {
	method    string
	recipient common.Address
	amount    *big.Int
	hash      common.Hash
}

// fakeChain 是 web3.Client 的内存实现，按方法名配置返回值。
type fakeChain struct {
	mu sync.Mutex

	round    web3.RoundInfo
	roundErr error
	stake    *big.Int
	fees     *big.Int
	readErr  error

	lastRewardRound   uint64
	rewardCalledErr   error
	rewardCalledCalls int

	submitErr  map[string]error
	receipts   map[string]web3.Receipt
	receiptErr map[string]error
	// awaitHook 在等待回执时被调用，可用于模拟取消。
	awaitHook func(ctx context.Context, method string) error

	submissions []submission
	byHash      map[common.Hash]string
}

func newFakeChain(round uint64, initialized, locked bool) *fakeChain {
	return &fakeChain{
		round:      web3.RoundInfo{Number: new(big.Int).SetUint64(round), Initialized: initialized, Locked: locked},
		stake:      new(big.Int),
		fees:       new(big.Int),
		submitErr:  map[string]error{},
		receipts:   map[string]web3.Receipt{},
		receiptErr: map[string]error{},
		byHash:     map[common.Hash]string{},
	}
}

func (f *fakeChain) setRound(round uint64, initialized, locked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = web3.RoundInfo{Number: new(big.Int).SetUint64(round), Initialized: initialized, Locked: locked}
}

func (f *fakeChain) CurrentRound(context.Context) (web3.RoundInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.round, f.roundErr
}

func (f *fakeChain) PendingStake(_ context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr != orchestratorAddr {
		return nil, errors.New("unexpected delegator")
	}
	return new(big.Int).Set(f.stake), nil
}

func (f *fakeChain) PendingFees(_ context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return new(big.Int).Set(f.fees), nil
}

func (f *fakeChain) RewardCalled(_ context.Context, _ common.Address, round *big.Int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewardCalledCalls++
	if f.rewardCalledErr != nil {
		return false, f.rewardCalledErr
	}
	return f.lastRewardRound == round.Uint64(), nil
}

func (f *fakeChain) submit(method string, recipient common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.submitErr[method]; err != nil {
		return common.Hash{}, err
	}
	hash := common.BigToHash(big.NewInt(int64(len(f.submissions) + 1)))
	var amt *big.Int
	if amount != nil {
		amt = new(big.Int).Set(amount)
	}
	f.submissions = append(f.submissions, submission{method: method, recipient: recipient, amount: amt, hash: hash})
	f.byHash[hash] = method
	return hash, nil
}

func (f *fakeChain) Reward(_ context.Context, signer web3.Signer) (common.Hash, error) {
	return f.submit("reward", common.Address{}, nil)
}

func (f *fakeChain) TransferBond(_ context.Context, _ web3.Signer, recipient common.Address, amount *big.Int) (common.Hash, error) {
	return f.submit("transferBond", recipient, amount)
}

func (f *fakeChain) WithdrawFees(_ context.Context, _ web3.Signer, recipient common.Address, amount *big.Int) (common.Hash, error) {
	return f.submit("withdrawFees", recipient, amount)
}

func (f *fakeChain) AwaitReceipt(ctx context.Context, hash common.Hash, _ time.Duration) (web3.Receipt, error) {
	f.mu.Lock()
	method := f.byHash[hash]
	hook := f.awaitHook
	receipt, ok := f.receipts[method]
	err := f.receiptErr[method]
	f.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx, method); hookErr != nil {
			return web3.Receipt{TxHash: hash}, hookErr
		}
	}
	if err != nil {
		return web3.Receipt{TxHash: hash}, err
	}
	if !ok {
		receipt = web3.Receipt{Status: 1, BlockNumber: 100, GasUsed: 21000}
	}
	receipt.TxHash = hash
	return receipt, nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.submissions))
	for _, s := range f.submissions {
		out = append(out, s.method)
	}
	return out
}

type recordedMetrics struct {
	mu           sync.Mutex
	cycles       []string
	transactions []string
	round        uint64
}

func (m *recordedMetrics) ObserveCycle(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, result)
}

func (m *recordedMetrics) ObserveRound(round uint64, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = round
}

func (m *recordedMetrics) ObserveBalances(_, _ *big.Int) {}

func (m *recordedMetrics) ObserveTransaction(action, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, action+":"+status)
}

var _ web3.Client = (*fakeChain)(nil)
