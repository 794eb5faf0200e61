package ethereum

// Minimal ABI fragments for the Livepeer protocol contracts. Only the methods
// the keeper calls are declared.

const roundsManagerABI = `[
  {"type":"function","name":"currentRound","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"currentRoundInitialized","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"currentRoundLocked","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

const bondingManagerABI = `[
  {"type":"function","name":"pendingStake","stateMutability":"view",
   "inputs":[{"name":"_delegator","type":"address"},{"name":"_endRound","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"pendingFees","stateMutability":"view",
   "inputs":[{"name":"_delegator","type":"address"},{"name":"_endRound","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTranscoder","stateMutability":"view",
   "inputs":[{"name":"_transcoder","type":"address"}],
   "outputs":[
     {"name":"lastRewardRound","type":"uint256"},
     {"name":"rewardCut","type":"uint256"},
     {"name":"feeShare","type":"uint256"},
     {"name":"lastActiveStakeUpdateRound","type":"uint256"},
     {"name":"activationRound","type":"uint256"},
     {"name":"deactivationRound","type":"uint256"},
     {"name":"activeCumulativeRewards","type":"uint256"},
     {"name":"cumulativeRewards","type":"uint256"},
     {"name":"cumulativeFees","type":"uint256"},
     {"name":"lastFeeRound","type":"uint256"}
   ]},
  {"type":"function","name":"reward","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"transferBond","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_delegator","type":"address"},
     {"name":"_amount","type":"uint256"},
     {"name":"_oldDelegateNewPosPrev","type":"address"},
     {"name":"_oldDelegateNewPosNext","type":"address"},
     {"name":"_newDelegateNewPosPrev","type":"address"},
     {"name":"_newDelegateNewPosNext","type":"address"}
   ],
   "outputs":[]},
  {"type":"function","name":"withdrawFees","stateMutability":"nonpayable",
   "inputs":[{"name":"_recipient","type":"address"},{"name":"_amount","type":"uint256"}],
   "outputs":[]}
]`
