package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <display-name>",
		Short: "Generate identity keys, sign in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Session.SignUp(cmd.Context(), args[0]); err != nil {
				return err
			}
			id, err := wire.Session.Identity()
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s.\nFingerprint: %s\n", id.DisplayName, id.Fingerprint)
			return nil
		},
	}
}
