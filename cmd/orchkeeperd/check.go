package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"OrchKeeper/internal/keeper"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, unlock the key and run one dry-run cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.keeper.RunCycle(ctx, &keeper.State{})
			printReport(cmd.OutOrStdout(), a.keeper, report)
			return report.Err
		},
	}
}

func printReport(w io.Writer, k *keeper.Keeper, report keeper.CycleReport) {
	fmt.Fprintf(w, "orchestrator:  %s\n", k.Orchestrator().Hex())
	if report.Err != nil {
		fmt.Fprintf(w, "error:         %v\n", report.Err)
		return
	}
	fmt.Fprintf(w, "round:         %d (initialized=%t locked=%t)\n", report.Round.Number, report.Round.Initialized, report.Round.Locked)
	fmt.Fprintf(w, "pending stake: %s wei\n", report.Balances.PendingStake)
	fmt.Fprintf(w, "pending fees:  %s wei\n", report.Balances.PendingFees)
	if len(report.Actions) == 0 {
		fmt.Fprintln(w, "actions:       none")
		return
	}
	fmt.Fprintln(w, "actions:")
	for _, action := range report.Actions {
		if action.Amount != nil {
			fmt.Fprintf(w, "  - %s %s wei\n", action.Kind, action.Amount)
		} else {
			fmt.Fprintf(w, "  - %s\n", action.Kind)
		}
	}
}
