package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <key-file>",
		Short: "Resume a previous identity from an exported private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			armored, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := wire.Session.ImportKey(cmd.Context(), string(armored)); err != nil {
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
