package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"OrchKeeper/internal/observability/metrics"
	"OrchKeeper/pkg/logger"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keeper loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decide and log without submitting transactions")
	return cmd
}

func run(ctx context.Context, dryRun bool) error {
	a, err := setup(ctx, configPath, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	wait := serveMetrics(ctx, a.cfg.Metrics.Address, a.metrics)
	defer func() {
		cancel()
		wait()
	}()

	return a.keeper.Run(ctx)
}

// serveMetrics 在后台启动指标服务，返回的 wait 在服务退出后返回。
// ctx 取消前调用 wait 会一直阻塞。
func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector) (wait func()) {
	if addr == "" {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.StartServer(ctx, addr, collector); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("指标服务退出", slog.Any("error", err), slog.String("address", addr))
		}
	}()
	return func() { <-done }
}
