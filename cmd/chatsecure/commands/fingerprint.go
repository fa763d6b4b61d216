package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Show the fingerprint of the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			fmt.Println(id.Fingerprint)
			return nil
		},
	}
}
