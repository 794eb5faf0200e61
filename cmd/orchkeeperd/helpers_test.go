package main

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"OrchKeeper/internal/keeper"
	"OrchKeeper/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

type idleClient struct{}

func (idleClient) CurrentRound(context.Context) (web3.RoundInfo, error) {
	return web3.RoundInfo{Number: big.NewInt(1)}, nil
}
func (idleClient) PendingStake(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}
func (idleClient) PendingFees(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}
func (idleClient) RewardCalled(context.Context, common.Address, *big.Int) (bool, error) {
	return false, nil
}
func (idleClient) Reward(context.Context, web3.Signer) (common.Hash, error) {
	return common.Hash{}, nil
}
func (idleClient) TransferBond(context.Context, web3.Signer, common.Address, *big.Int) (common.Hash, error) {
	return common.Hash{}, nil
}
func (idleClient) WithdrawFees(context.Context, web3.Signer, common.Address, *big.Int) (common.Hash, error) {
	return common.Hash{}, nil
}
func (idleClient) AwaitReceipt(context.Context, common.Hash, time.Duration) (web3.Receipt, error) {
	return web3.Receipt{Status: 1}, nil
}
func (idleClient) Close() {}

func newTestKeeper(t *testing.T) *keeper.Keeper {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	k, err := keeper.New(idleClient{}, nil, keeper.Thresholds{
		PollInterval: time.Minute,
		Orchestrator: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	}, keeper.WithDryRun(true), keeper.WithLogger(discard), keeper.WithAuditLogger(discard))
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	return k
}
