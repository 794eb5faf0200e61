package keeper

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/web3"
)

// RoundReader 是追踪器需要的链上读取能力。
type RoundReader interface {
	CurrentRound(ctx context.Context) (web3.RoundInfo, error)
}

// Tracker 读取当前轮次并规范化其状态。
type Tracker struct {
	reader RoundReader
	logger *slog.Logger
}

// NewTracker 创建追踪器。
func NewTracker(reader RoundReader, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{reader: reader, logger: logger}
}

// Observe 读取一次轮次状态。读取失败统一返回 CHAIN_READ_FAILED，不在内部重试。
func (t *Tracker) Observe(ctx context.Context) (RoundState, error) {
	info, err := t.reader.CurrentRound(ctx)
	if err != nil {
		return RoundState{}, xerrors.Wrap(xerrors.CodeChainRead, err, "读取当前轮次失败")
	}
	if info.Number == nil || info.Number.Sign() < 0 || !info.Number.IsUint64() {
		return RoundState{}, xerrors.New(xerrors.CodeChainRead, fmt.Sprintf("轮次编号超出范围: %v", info.Number))
	}

	state := RoundState{
		Number:      info.Number.Uint64(),
		Initialized: info.Initialized,
		Locked:      info.Locked,
	}
	if state.Locked && !state.Initialized {
		t.logger.Warn("链上报告轮次已锁定但未初始化，按未锁定处理", slog.Uint64("round", state.Number))
		state.Locked = false
	}
	return state, nil
}

// Transition 判断 cur 相对上一次观测是否进入了新轮次。seen 为 false 表示尚无观测。
func Transition(prev uint64, seen bool, cur RoundState) bool {
	return seen && prev != cur.Number
}
