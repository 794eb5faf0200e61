package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath 由 --config 或 ORCHKEEPER_CONFIG 指定，为空时只使用环境变量。
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "orchkeeperd",
		Short:         "Livepeer orchestrator keeper",
		Long:          "Claims round rewards, moves surplus stake and withdraws fees for one orchestrator account.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ORCHKEEPER_CONFIG"), "path to the JSON configuration file")
	root.AddCommand(newRunCmd(), newCheckCmd())
	return root
}

// main 是 orchkeeperd 的入口。
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "orchkeeperd: %v\n", err)
		os.Exit(1)
	}
}
