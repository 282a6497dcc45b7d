package main

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the maintenance sweep once",
	Long: `Release elapsed lockouts, deactivate expired API keys and purge login
attempts older than LOGIN_ATTEMPT_RETENTION.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := application.Cleanup.RunOnce(cmd.Context())
		if printErr := printJSON(cmd, result); printErr != nil && err == nil {
			err = printErr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
