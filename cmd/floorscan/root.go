package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "floorscan",
		Short:         "Read inventory screenshots and check card incomes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newIncomeCommand())
	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newModifiersCommand())

	return rootCmd
}
