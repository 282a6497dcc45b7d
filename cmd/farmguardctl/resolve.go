package main

import (
	"github.com/spf13/cobra"
)

var resolveFlags struct {
	by string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve-event <id>",
	Short: "Mark a security event resolved",
	Long:  `Mark a security event resolved. Resolving an already resolved event keeps the first resolver.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := application.Events.Resolve(cmd.Context(), args[0], resolveFlags.by)
		if err != nil {
			return err
		}
		return printJSON(cmd, event)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveFlags.by, "by", "", "user id recorded as the resolver")
	_ = resolveCmd.MarkFlagRequired("by")
}
