package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/artexin/internal/packager"
)

func newVerifyCmd() *cobra.Command {
	var (
		keyring string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "verify <sig>",
		Short: "Verifies a signed archive",
		Long: `Checks the OpenPGP signature of an archive written by collect or
fetch-list. With --out the verified zip payload is written to that path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if keyring == "" {
				keyring = env.cfg.Signing.Keyring
			}
			if keyring == "" {
				return errors.New("--keyring is required")
			}
			payload, err := packager.Verify(args[0], keyring)
			if err != nil {
				return fmt.Errorf("verify %s: %w", args[0], err)
			}
			if out != "" {
				if err := os.WriteFile(out, payload, 0o640); err != nil {
					return fmt.Errorf("write payload: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: good signature (%d bytes)\n", args[0], len(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyring, "keyring", "", "keyring path (default signing.keyring)")
	cmd.Flags().StringVar(&out, "out", "", "write the verified payload to this path")
	return cmd
}
