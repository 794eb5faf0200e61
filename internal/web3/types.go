package web3

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptTimeout is returned by AwaitReceipt when no receipt was observed
// before the deadline. The transaction may still land later.
var ErrReceiptTimeout = errors.New("transaction receipt not observed before timeout")

// RoundInfo is the raw RoundsManager view of the current round.
type RoundInfo struct {
	Number      *big.Int
	Initialized bool
	Locked      bool
}

// Receipt summarises a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Signer authorises transactions on behalf of a single account.
type Signer interface {
	Address() common.Address
	// TransactOpts returns fresh options bound to ctx. Nonce and gas fields
	// are left empty so the backend fills them at send time.
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Client is the chain capability surface consumed by the keeper. Read
// methods fail on network, decode or revert errors; write methods return the
// hash of the broadcast transaction without waiting for it to be mined.
type Client interface {
	CurrentRound(ctx context.Context) (RoundInfo, error)
	PendingStake(ctx context.Context, delegator common.Address) (*big.Int, error)
	PendingFees(ctx context.Context, delegator common.Address) (*big.Int, error)
	RewardCalled(ctx context.Context, transcoder common.Address, round *big.Int) (bool, error)

	Reward(ctx context.Context, signer Signer) (common.Hash, error)
	TransferBond(ctx context.Context, signer Signer, recipient common.Address, amount *big.Int) (common.Hash, error)
	WithdrawFees(ctx context.Context, signer Signer, recipient common.Address, amount *big.Int) (common.Hash, error)

	AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (Receipt, error)
	Close()
}
