package keeper

import "math/big"

// Decide 根据轮次状态、余额与账本给出本周期要执行的操作，结果按
// Reward、TransferBond、WithdrawFees 的顺序排列。该函数没有副作用。
//
// 轮次未初始化时不做任何事；未锁定时只可能 reward；锁定后才处理质押与手续费。
func Decide(round RoundState, balances Balances, ledger *Ledger, th Thresholds) []Action {
	if !round.Initialized {
		return nil
	}

	var actions []Action
	if !ledger.RewardClaimed(round.Number) {
		actions = append(actions, Action{Kind: ActionReward})
	}
	if !round.Locked {
		return actions
	}

	minRetained := orZero(th.MinRetainedStake)
	if stake := balances.PendingStake; stake != nil && stake.Cmp(minRetained) > 0 {
		actions = append(actions, Action{
			Kind:   ActionTransferBond,
			Amount: new(big.Int).Sub(stake, minRetained),
		})
	}

	if fees := balances.PendingFees; fees != nil && fees.Cmp(orZero(th.FeeWithdrawThreshold)) >= 0 {
		actions = append(actions, Action{
			Kind:   ActionWithdrawFees,
			Amount: new(big.Int).Set(fees),
		})
	}
	return actions
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
