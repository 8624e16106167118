package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var dsnFlag string

	rootCmd := &cobra.Command{
		Use:           "mbook",
		Short:         "Inspect book archives and conversion status",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load(".env")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Ledger DSN (defaults to MBOOK_LEDGER_DSN)")

	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newUnpackCommand())
	rootCmd.AddCommand(newStatusCommand(&dsnFlag))
	rootCmd.AddCommand(newListCommand(&dsnFlag))
	return rootCmd
}
