package main

import (
	"context"
	"log/slog"
	"strings"

	"OrchKeeper/internal/config"
	xerrors "OrchKeeper/internal/errors"
	"OrchKeeper/internal/events"
	"OrchKeeper/internal/journal"
	"OrchKeeper/internal/keeper"
	"OrchKeeper/internal/observability/metrics"
	"OrchKeeper/internal/storage/mysql"
	"OrchKeeper/internal/wallet"
	"OrchKeeper/internal/web3/provider"
	"OrchKeeper/pkg/logger"
)

// app 持有一次运行所需的全部组件，Close 按创建的逆序释放。
type app struct {
	cfg       *config.Config
	conn      *provider.Connection
	wallet    *wallet.Wallet
	journal   journal.Store
	publisher events.Publisher
	metrics   *metrics.Collector
	keeper    *keeper.Keeper
}

func setup(ctx context.Context, path string, dryRun bool) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditPath != "",
			Path:    cfg.Log.AuditPath,
		},
	}); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "初始化日志失败")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	th, err := cfg.Thresholds()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.conn, err = provider.Open(ctx, cfg.Chain)
	if err != nil {
		return nil, err
	}

	walletCfg := wallet.Config{
		KeystorePath:   cfg.Wallet.KeystorePath,
		PassphraseFile: cfg.Wallet.PassphraseFile,
		Expected:       cfg.OrchestratorAddress(),
		ChainID:        a.conn.ChainID,
	}
	if kr := cfg.Wallet.Keyring; kr.Service != "" {
		walletCfg.Keyring = &wallet.KeyringSource{
			Service:      kr.Service,
			Key:          kr.Key,
			Backends:     kr.Backends,
			FileDir:      kr.FileDir,
			FilePassword: kr.FilePassword,
		}
	}
	a.wallet, err = wallet.Open(walletCfg)
	if err != nil {
		return nil, err
	}

	a.journal, err = openJournal(ctx, cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.publisher, err = openPublisher(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}

	a.keeper, err = keeper.New(a.conn.Client, a.wallet, keeper.Thresholds{
		MinRetainedStake:     th.MinRetainedStake,
		FeeWithdrawThreshold: th.FeeWithdrawThreshold,
		PollInterval:         th.PollInterval,
		ReceiptTimeout:       th.ReceiptTimeout,
		StakeRecipient:       th.StakeRecipient,
		FeeRecipient:         th.FeeRecipient,
		Orchestrator:         a.wallet.Address(),
	},
		keeper.WithDryRun(dryRun || cfg.Policy.DryRun),
		keeper.WithRewardCrossCheck(*cfg.Policy.RewardCrossCheck),
		keeper.WithJournal(a.journal),
		keeper.WithPublisher(a.publisher),
		keeper.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}

	logger.L().Info("组件初始化完成",
		slog.String("network", cfg.Chain.Network),
		slog.Uint64("chain_id", a.conn.Network.ChainID),
		slog.String("bonding_manager", a.conn.Network.BondingManager),
		slog.String("rounds_manager", a.conn.Network.RoundsManager),
		slog.String("journal", cfg.Journal.Driver),
		slog.String("events", cfg.Events.Driver),
	)
	ok = true
	return a, nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return journal.NewMemoryStore(journal.DefaultCapacity), nil
	case "mysql":
		return mysql.NewJournalStore(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidConfig, "未知的 journal 驱动: "+cfg.Driver)
	}
}

func openPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return events.Nop{}, nil
	case "memory":
		return events.NewMemory(), nil
	case "redis":
		p, err := events.NewRedisPublisher(ctx, events.RedisConfig{
			Address:    cfg.Redis.Address,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Channel:    cfg.Redis.Channel,
			HistoryKey: cfg.Redis.HistoryKey,
			HistoryLen: cfg.Redis.HistoryLen,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "初始化 Redis 事件通道失败")
		}
		return p, nil
	case "rabbitmq":
		p, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "初始化 RabbitMQ 事件通道失败")
		}
		return p, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidConfig, "未知的 events 驱动: "+cfg.Driver)
	}
}

// Close 释放所有组件，私钥最后清零。
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.L().Warn("关闭事件发布器失败", slog.Any("error", err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.L().Warn("关闭交易流水失败", slog.Any("error", err))
		}
	}
	if a.conn != nil {
		a.conn.Close()
	}
	if a.wallet != nil {
		a.wallet.Close()
	}
	_ = logger.Sync()
}
