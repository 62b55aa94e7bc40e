package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the certificate authority",
	Long: `Create a self-signed CA certificate named by ca_name, its private key,
an empty CRL and the CA state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := passphrase(cmd)
		if err != nil {
			return err
		}
		authority, closeFn, err := openAuthority(cmd.Context(), pass)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := authority.Init(cmd.Context(), cfg.CAName, cfg.CertValidity); err != nil {
			return err
		}
		state, _, err := authority.Store().State()
		if err != nil {
			return err
		}
		printBanner(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized certificate authority %s (%s backend)\n", state.Subject, cfg.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
