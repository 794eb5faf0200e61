// Package provider 根据配置解析网络定义并建立链上客户端。
package provider

import (
	"context"
	"fmt"
	"math/big"

	"OrchKeeper/internal/config"
	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/web3"
	"OrchKeeper/internal/web3/ethereum"
)

// Connection 是已建立的链上客户端及其网络信息。
type Connection struct {
	Client  web3.Client
	Network web3.NetworkDefinition
	ChainID *big.Int
}

// Close 释放客户端。
func (c *Connection) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
	}
}

// ResolveNetwork 加载网络定义文件并选出配置的网络。配置中的 chain_id 若与网络定义冲突则报错。
func ResolveNetwork(cfg config.ChainConfig) (web3.NetworkDefinition, error) {
	defs, err := web3.LoadNetworks(cfg.NetworksFile)
	if err != nil {
		return web3.NetworkDefinition{}, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "加载网络定义失败")
	}
	network, err := defs.Resolve(cfg.Network)
	if err != nil {
		return web3.NetworkDefinition{}, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "解析网络定义失败")
	}
	if cfg.ChainID != 0 && cfg.ChainID != network.ChainID {
		return web3.NetworkDefinition{}, xerrors.New(xerrors.CodeInvalidConfig,
			fmt.Sprintf("CHAIN_ID=%d 与网络 %q 的 chain_id=%d 不一致", cfg.ChainID, cfg.Network, network.ChainID))
	}
	return network, nil
}

// Open 解析网络并连接 RPC 端点。连接失败或链 ID 不匹配都属于启动期错误。
func Open(ctx context.Context, cfg config.ChainConfig) (*Connection, error) {
	network, err := ResolveNetwork(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ethereum.NewClient(ctx, ethereum.Config{
		RPCURL:              cfg.RPCURL,
		ChainID:             network.ChainID,
		Network:             network,
		ReceiptPollInterval: cfg.ReceiptPollInterval.Std(),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "连接 RPC 端点失败")
	}
	return &Connection{
		Client:  client,
		Network: network,
		ChainID: new(big.Int).SetUint64(network.ChainID),
	}, nil
}
