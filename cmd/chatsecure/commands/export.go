package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <key-file>",
		Short: "Write the private key of the stored session to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Offline operation: read the record straight from the store.
			rec, ok, err := wire.Credentials.Restore()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no stored session; run init first")
			}
			id, err := wire.Keys.Import(rec.PrivateKey)
			if err != nil {
				return err
			}
			armored, err := wire.Keys.Export(id)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], []byte(armored), 0o600); err != nil {
				return err
			}
			fmt.Printf("Key written to %s\n", args[0])
			return nil
		},
	}
}
