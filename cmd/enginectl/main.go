package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:           "enginectl",
		Short:         "CLI client for the backtest engine REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8000", "Engine service base URL")

	taskCmd := &cobra.Command{
		Use:   "task <task_id>",
		Short: "Fetch the state of a submitted backtest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(taskCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check engine service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(newSubmitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
