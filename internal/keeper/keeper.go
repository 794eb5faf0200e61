package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/events"
	"OrchKeeper/internal/journal"
	"OrchKeeper/internal/web3"
	"OrchKeeper/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// sideEffectTimeout 限制周期结束后写流水与发事件的时间。
const sideEffectTimeout = 5 * time.Second

// Metrics 是 keeper 上报指标所需的能力。
type Metrics interface {
	ObserveCycle(result string, duration time.Duration)
	ObserveRound(round uint64, locked bool)
	ObserveBalances(stake, fees *big.Int)
	ObserveTransaction(action, status string)
}

// State 是跨周期保留的循环状态，只由 Run（或调用 RunCycle 的一方）持有。
type State struct {
	LastRound uint64
	Seen      bool
	Ledger    Ledger
}

// Keeper 轮询轮次状态并按策略提交 reward、transferBond 与 withdrawFees。
// 周期严格串行执行，同一账户不会有两笔交易同时在途。
type Keeper struct {
	client       web3.Client
	signer       web3.Signer
	tracker      *Tracker
	thresholds   Thresholds
	orchestrator common.Address

	journal   journal.Store
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	audit     *slog.Logger

	dryRun     bool
	crossCheck bool
	now        func() time.Time
}

// Option 定义可选配置。
type Option func(*Keeper)

// WithDryRun 只做决策与日志，不提交交易。
func WithDryRun(enabled bool) Option {
	return func(k *Keeper) {
		k.dryRun = enabled
	}
}

// WithRewardCrossCheck 控制是否用链上 lastRewardRound 校准账本，默认开启。
func WithRewardCrossCheck(enabled bool) Option {
	return func(k *Keeper) {
		k.crossCheck = enabled
	}
}

// WithJournal 配置交易流水存储。
func WithJournal(store journal.Store) Option {
	return func(k *Keeper) {
		k.journal = store
	}
}

// WithPublisher 配置事件发布器。
func WithPublisher(publisher events.Publisher) Option {
	return func(k *Keeper) {
		k.publisher = publisher
	}
}

// WithMetrics 配置指标上报。
func WithMetrics(m Metrics) Option {
	return func(k *Keeper) {
		k.metrics = m
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(k *Keeper) {
		k.logger = l
	}
}

// WithAuditLogger 指定审计日志输出。
func WithAuditLogger(l *slog.Logger) Option {
	return func(k *Keeper) {
		k.audit = l
	}
}

// New 构造 Keeper。未配置编排者地址时使用签名者地址。
func New(client web3.Client, signer web3.Signer, th Thresholds, opts ...Option) (*Keeper, error) {
	k := &Keeper{
		client:     client,
		signer:     signer,
		thresholds: th,
		crossCheck: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}

	if client == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置链上客户端")
	}
	if signer == nil && !k.dryRun {
		return nil, xerrors.New(xerrors.CodeKeyMaterial, "未配置签名者")
	}
	k.orchestrator = th.Orchestrator
	if k.orchestrator == (common.Address{}) {
		if signer == nil {
			return nil, xerrors.New(xerrors.CodeInvalidConfig, "无法确定编排者地址")
		}
		k.orchestrator = signer.Address()
	}
	if signer != nil && signer.Address() != k.orchestrator {
		return nil, xerrors.New(xerrors.CodeKeyMaterial,
			fmt.Sprintf("签名地址 %s 与编排者地址 %s 不一致", signer.Address().Hex(), k.orchestrator.Hex()))
	}
	if th.PollInterval <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidConfig, "轮询间隔必须为正数")
	}

	if k.logger == nil {
		k.logger = logger.Named("keeper")
	}
	if k.audit == nil {
		k.audit = logger.Audit()
	}
	if k.publisher == nil {
		k.publisher = events.Nop{}
	}
	k.tracker = NewTracker(client, k.logger)
	return k, nil
}

// Orchestrator 返回被管理的账户地址。
func (k *Keeper) Orchestrator() common.Address {
	return k.orchestrator
}

// Run 持续执行周期直到 ctx 取消。取消属于正常退出，返回 nil。
func (k *Keeper) Run(ctx context.Context) error {
	state := &State{}
	k.logger.Info("keeper 启动",
		slog.String("orchestrator", k.orchestrator.Hex()),
		slog.String("stake_recipient", k.thresholds.StakeRecipient.Hex()),
		slog.String("fee_recipient", k.thresholds.FeeRecipient.Hex()),
		slog.String("min_retained_stake", weiString(k.thresholds.MinRetainedStake)),
		slog.String("fee_withdraw_threshold", weiString(k.thresholds.FeeWithdrawThreshold)),
		slog.Duration("poll_interval", k.thresholds.PollInterval),
		slog.Bool("dry_run", k.dryRun),
	)

	for {
		k.RunCycle(ctx, state)
		if ctx.Err() != nil {
			k.logger.Info("keeper 已停止")
			return nil
		}

		timer := time.NewTimer(k.thresholds.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			k.logger.Info("keeper 已停止")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle 执行一次 读取 -> 决策 -> 执行 周期并返回报告。
// 读取阶段任何失败都会放弃整个周期，不执行任何操作，state 保持不变。
func (k *Keeper) RunCycle(ctx context.Context, state *State) (report CycleReport) {
	report = CycleReport{Started: k.now(), DryRun: k.dryRun}
	defer func() {
		report.Duration = k.now().Sub(report.Started)
		k.finish(ctx, &report)
	}()

	round, balances, rewardOnChain, err := k.read(ctx, state)
	if err != nil {
		report.Err = err
		return report
	}
	report.Round = round
	report.Balances = balances

	report.Transition = Transition(state.LastRound, state.Seen, round)
	if report.Transition {
		k.logger.Info("进入新轮次",
			slog.Uint64("previous_round", state.LastRound),
			slog.Uint64("round", round.Number))
		state.Ledger.Reset()
	}
	if rewardOnChain {
		state.Ledger.MarkRewarded(round.Number)
	}
	state.LastRound = round.Number
	state.Seen = true

	report.Actions = Decide(round, balances, &state.Ledger, k.thresholds)
	k.logger.Info("周期决策",
		slog.Uint64("round", round.Number),
		slog.Bool("initialized", round.Initialized),
		slog.Bool("locked", round.Locked),
		slog.String("pending_stake", weiString(balances.PendingStake)),
		slog.String("pending_fees", weiString(balances.PendingFees)),
		slog.Bool("reward_claimed", state.Ledger.RewardClaimed(round.Number)),
		slog.String("actions", describeActions(report.Actions)),
	)

	for _, action := range report.Actions {
		if ctx.Err() != nil {
			break
		}
		outcome := k.execute(ctx, round, action)
		report.Outcomes = append(report.Outcomes, outcome)
		if action.Kind == ActionReward && outcome.Status == StatusConfirmed {
			state.Ledger.MarkRewarded(round.Number)
		}
	}
	return report
}

func (k *Keeper) read(ctx context.Context, state *State) (RoundState, Balances, bool, error) {
	round, err := k.tracker.Observe(ctx)
	if err != nil {
		return RoundState{}, Balances{}, false, err
	}
	stake, err := k.client.PendingStake(ctx, k.orchestrator)
	if err != nil {
		return round, Balances{}, false, xerrors.Wrap(xerrors.CodeChainRead, err, "读取 pendingStake 失败")
	}
	fees, err := k.client.PendingFees(ctx, k.orchestrator)
	if err != nil {
		return round, Balances{}, false, xerrors.Wrap(xerrors.CodeChainRead, err, "读取 pendingFees 失败")
	}
	balances := Balances{PendingStake: stake, PendingFees: fees}

	// 账本在进程重启或换轮后为空，以链上记录为准。
	rewardOnChain := false
	if k.crossCheck && round.Initialized && !state.Ledger.RewardClaimed(round.Number) {
		rewardOnChain, err = k.client.RewardCalled(ctx, k.orchestrator, new(big.Int).SetUint64(round.Number))
		if err != nil {
			return round, balances, false, xerrors.Wrap(xerrors.CodeChainRead, err, "读取 lastRewardRound 失败")
		}
		if rewardOnChain {
			k.logger.Info("链上显示本轮已 reward，跳过", slog.Uint64("round", round.Number))
		}
	}
	return round, balances, rewardOnChain, nil
}

func (k *Keeper) execute(ctx context.Context, round RoundState, action Action) Outcome {
	outcome := Outcome{Action: action}
	attrs := []any{
		slog.Uint64("round", round.Number),
		slog.String("action", action.Kind.String()),
		slog.String("amount", weiString(action.Amount)),
	}

	if k.dryRun {
		outcome.Status = StatusSkipped
		k.logger.Info("dry-run 模式，跳过提交", attrs...)
		return outcome
	}

	hash, err := k.submit(ctx, action)
	if err != nil {
		code := xerrors.CodeSubmission
		if ctx.Err() != nil {
			code = xerrors.CodeCancelled
		}
		outcome.Status = StatusFailed
		outcome.Err = xerrors.Wrap(code, err, fmt.Sprintf("提交 %s 失败", action.Kind))
		k.logger.Warn("交易提交失败", append(attrs, slog.Any("error", outcome.Err))...)
		k.audit.Warn("交易提交失败", append(attrs, slog.String("error_code", string(code)))...)
		return outcome
	}
	outcome.TxHash = hash
	attrs = append(attrs, slog.String("tx_hash", hash.Hex()))
	k.logger.Info("交易已提交，等待回执", attrs...)
	k.audit.Info("交易已提交", attrs...)

	receipt, err := k.client.AwaitReceipt(ctx, hash, k.thresholds.ReceiptTimeout)
	switch {
	case err != nil && ctx.Err() != nil:
		// 交易可能仍会上链，重启后由余额与 lastRewardRound 重新判断。
		outcome.Status = StatusSubmitted
		outcome.Err = xerrors.Wrap(xerrors.CodeCancelled, err, "等待回执时被取消")
		k.logger.Warn("等待回执时被取消", attrs...)
		k.audit.Warn("交易未确认即退出", attrs...)
	case err != nil:
		outcome.Status = StatusFailed
		outcome.Err = xerrors.Wrap(xerrors.CodeReceiptTimeout, err, fmt.Sprintf("%s 未在 %s 内确认", action.Kind, k.thresholds.ReceiptTimeout))
		k.logger.Warn("交易确认超时", append(attrs, slog.Any("error", outcome.Err))...)
		k.audit.Warn("交易确认超时", attrs...)
	case !receipt.Succeeded():
		outcome.Status = StatusFailed
		outcome.BlockNumber = receipt.BlockNumber
		outcome.GasUsed = receipt.GasUsed
		outcome.Err = xerrors.New(xerrors.CodeReverted, fmt.Sprintf("%s 在区块 %d 回滚", action.Kind, receipt.BlockNumber))
		attrs = append(attrs, slog.Uint64("block", receipt.BlockNumber), slog.Uint64("gas_used", receipt.GasUsed))
		k.logger.Error("交易回滚", attrs...)
		k.audit.Error("交易回滚", attrs...)
	default:
		outcome.Status = StatusConfirmed
		outcome.BlockNumber = receipt.BlockNumber
		outcome.GasUsed = receipt.GasUsed
		attrs = append(attrs, slog.Uint64("block", receipt.BlockNumber), slog.Uint64("gas_used", receipt.GasUsed))
		k.logger.Info("交易已确认", attrs...)
		k.audit.Info("交易已确认", attrs...)
	}
	return outcome
}

func (k *Keeper) submit(ctx context.Context, action Action) (common.Hash, error) {
	switch action.Kind {
	case ActionReward:
		return k.client.Reward(ctx, k.signer)
	case ActionTransferBond:
		return k.client.TransferBond(ctx, k.signer, k.thresholds.StakeRecipient, action.Amount)
	case ActionWithdrawFees:
		return k.client.WithdrawFees(ctx, k.signer, k.thresholds.FeeRecipient, action.Amount)
	default:
		return common.Hash{}, fmt.Errorf("未知操作 %d", action.Kind)
	}
}

// finish 负责周期结束后的日志、指标、流水与事件。这些副作用的失败只记录日志。
func (k *Keeper) finish(ctx context.Context, report *CycleReport) {
	if report.Err != nil {
		k.logger.Warn("周期已放弃，等待下一次轮询",
			slog.Any("error", report.Err),
			slog.String("error_code", string(xerrors.CodeOf(report.Err))),
			slog.Duration("duration", report.Duration))
	} else {
		k.logger.Debug("周期结束",
			slog.Uint64("round", report.Round.Number),
			slog.String("result", report.Result()),
			slog.Duration("duration", report.Duration))
	}

	if k.metrics != nil {
		if report.Err == nil {
			k.metrics.ObserveRound(report.Round.Number, report.Round.Locked)
			k.metrics.ObserveBalances(report.Balances.PendingStake, report.Balances.PendingFees)
		}
		for _, o := range report.Outcomes {
			k.metrics.ObserveTransaction(o.Action.Kind.String(), string(o.Status))
		}
		k.metrics.ObserveCycle(report.Result(), report.Duration)
	}

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if k.journal != nil {
		for _, o := range report.Outcomes {
			entry := journalEntry(report.Round.Number, o, report.DryRun)
			if err := k.journal.Record(sideCtx, &entry); err != nil {
				k.logger.Warn("写入交易流水失败", slog.Any("error", err), slog.String("action", o.Action.Kind.String()))
			}
		}
	}

	for _, event := range cycleEvents(report) {
		if err := k.publisher.Publish(sideCtx, event); err != nil {
			k.logger.Warn("发布事件失败", slog.Any("error", err), slog.String("kind", string(event.Kind)))
		}
	}
}

func journalEntry(round uint64, o Outcome, dryRun bool) journal.Entry {
	entry := journal.Entry{
		Round:       round,
		Action:      o.Action.Kind.String(),
		Status:      string(o.Status),
		BlockNumber: o.BlockNumber,
		GasUsed:     o.GasUsed,
		DryRun:      dryRun,
	}
	if o.Action.Amount != nil {
		entry.Amount = o.Action.Amount.String()
	}
	if o.TxHash != (common.Hash{}) {
		entry.TxHash = o.TxHash.Hex()
	}
	if o.Err != nil {
		entry.ErrorCode = string(xerrors.CodeOf(o.Err))
		entry.Error = o.Err.Error()
	}
	return entry
}

func cycleEvents(report *CycleReport) []events.Event {
	if report.Err != nil {
		return []events.Event{
			events.Event{Kind: events.KindCycleFailed, OccurredAt: report.Started}.WithError(report.Err),
		}
	}

	var out []events.Event
	if report.Transition {
		out = append(out, events.Event{
			Kind:       events.KindRoundTransition,
			Round:      report.Round.Number,
			Locked:     report.Round.Locked,
			OccurredAt: report.Started,
		})
	}
	for _, o := range report.Outcomes {
		event := events.Event{
			Kind:        events.KindTxOutcome,
			Round:       report.Round.Number,
			Action:      o.Action.Kind.String(),
			Status:      string(o.Status),
			BlockNumber: o.BlockNumber,
			GasUsed:     o.GasUsed,
			DryRun:      report.DryRun,
		}
		if o.Action.Amount != nil {
			event.Amount = o.Action.Amount.String()
		}
		if o.TxHash != (common.Hash{}) {
			event.TxHash = o.TxHash.Hex()
		}
		out = append(out, event.WithError(o.Err))
	}
	return out
}

func describeActions(actions []Action) string {
	if len(actions) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		if a.Amount != nil {
			parts = append(parts, fmt.Sprintf("%s(%s)", a.Kind, a.Amount))
		} else {
			parts = append(parts, a.Kind.String())
		}
	}
	return strings.Join(parts, ",")
}
