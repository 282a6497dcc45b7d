package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var unlockFlags struct {
	email string
	actor string
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release an account lockout",
	Long:  `Release the active lockout on the account with the given email. Unlocking an account that is not locked is a no-op.`,
	Args:  cobra.NoArgs,
	RunE:  runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)

	unlockCmd.Flags().StringVar(&unlockFlags.email, "email", "", "email of the locked account")
	unlockCmd.Flags().StringVar(&unlockFlags.actor, "by", "farmguardctl", "who performed the unlock")
	_ = unlockCmd.MarkFlagRequired("email")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(unlockFlags.email)
	if email == "" {
		return errors.New("--email must not be empty")
	}

	user, err := application.Users.GetByEmail(cmd.Context(), email)
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	unlocked, err := application.Guard.UnlockAccount(cmd.Context(), user.ID, unlockFlags.actor)
	if err != nil {
		return err
	}

	return printJSON(cmd, struct {
		UserID   string `json:"user_id"`
		Unlocked bool   `json:"unlocked"`
	}{
		UserID:   user.ID,
		Unlocked: unlocked,
	})
}
