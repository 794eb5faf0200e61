package keeper

// Ledger 记录当前进程内已经完成 reward 的轮次，避免同一轮重复提交。
// 轮次变化时由编排器清空。不持久化，重启后由链上 lastRewardRound 重新校准。
type Ledger struct {
	rewarded    uint64
	hasRewarded bool
}

// RewardClaimed 报告 round 是否已经记录过 reward。
func (l *Ledger) RewardClaimed(round uint64) bool {
	return l != nil && l.hasRewarded && l.rewarded == round
}

// MarkRewarded 记录 round 的 reward 已经确认。
func (l *Ledger) MarkRewarded(round uint64) {
	l.rewarded = round
	l.hasRewarded = true
}

// Reset 清空记录。
func (l *Ledger) Reset() {
	l.rewarded = 0
	l.hasRewarded = false
}
