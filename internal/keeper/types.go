package keeper

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoundState 是一次轮询读到的轮次状态。Locked 为 true 时 Initialized 必然为 true。
type RoundState struct {
	Number      uint64
	Initialized bool
	Locked      bool
}

// Balances 是编排者账户的待领取余额，单位 wei，每次轮询重新读取。
type Balances struct {
	PendingStake *big.Int
	PendingFees  *big.Int
}

// Thresholds 是启动后不可变的策略参数。
type Thresholds struct {
	// MinRetainedStake 为转出质押后至少保留的数额。
	MinRetainedStake *big.Int
	// FeeWithdrawThreshold 为提取手续费的下限（含）。
	FeeWithdrawThreshold *big.Int
	PollInterval         time.Duration
	ReceiptTimeout       time.Duration
	StakeRecipient       common.Address
	FeeRecipient         common.Address
	Orchestrator         common.Address
}

// ActionKind 表示一种链上操作。数值顺序即执行顺序。
type ActionKind int

const (
	ActionReward ActionKind = iota + 1
	ActionTransferBond
	ActionWithdrawFees
)

// String 返回用于日志、指标与事件的名称。
func (k ActionKind) String() string {
	switch k {
	case ActionReward:
		return "reward"
	case ActionTransferBond:
		return "transfer_bond"
	case ActionWithdrawFees:
		return "withdraw_fees"
	default:
		return "unknown"
	}
}

// Action 是策略给出的一条待执行操作。Reward 的 Amount 为 nil。
type Action struct {
	Kind   ActionKind
	Amount *big.Int
}

// OutcomeStatus 是交易的终态。
type OutcomeStatus string

const (
	StatusSubmitted OutcomeStatus = "submitted"
	StatusConfirmed OutcomeStatus = "confirmed"
	StatusFailed    OutcomeStatus = "failed"
	// StatusSkipped 仅出现在 dry-run 模式下。
	StatusSkipped OutcomeStatus = "skipped"
)

// Outcome 记录一次操作的结果。Status 为 failed 时 Err 携带错误码
// （TX_SUBMISSION_FAILED、TX_RECEIPT_TIMEOUT、TX_REVERTED 或 CANCELLED）。
type Outcome struct {
	Action      Action
	Status      OutcomeStatus
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Err         error
}

// CycleReport 汇总一个轮询周期，供日志、指标、流水与事件使用。
type CycleReport struct {
	Started    time.Time
	Duration   time.Duration
	Round      RoundState
	Transition bool
	Balances   Balances
	Actions    []Action
	Outcomes   []Outcome
	// Err 非空表示周期在读取阶段被放弃，没有执行任何操作。
	Err    error
	DryRun bool
}

// Failed 报告周期内是否有操作失败。
func (r CycleReport) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Result 返回周期结果标签：abandoned、partial、interrupted 或 ok。
func (r CycleReport) Result() string {
	switch {
	case r.Err != nil:
		return "abandoned"
	case r.Failed():
		return "partial"
	case r.interrupted():
		return "interrupted"
	default:
		return "ok"
	}
}

func (r CycleReport) interrupted() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusSubmitted {
			return true
		}
	}
	return false
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
