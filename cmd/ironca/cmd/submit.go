package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/internal/util"
)

var submitCmd = &cobra.Command{
	Use:   "submit HOST CSR_FILE",
	Short: "Queue a PEM certificate request for signing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := util.NormalizeHost(args[0])
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read certificate request: %w", err)
		}
		authority, closeFn, err := openAuthority(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer closeFn()

		if err := authority.Store().SubmitRequest(host, string(data)); err != nil {
			return err
		}
		req, err := authority.Store().FindRequest(host)
		if err != nil {
			return err
		}
		digest, err := req.Digest(cfg.Digest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued certificate request for %s %s\n", host, digest)
		return nil
	},
}

var crlCmd = &cobra.Command{
	Use:   "crl",
	Short: "Print the signing CA's current CRL in PEM form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, closeFn, err := openAuthority(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer closeFn()

		state, _, err := authority.Store().State()
		if err != nil {
			return err
		}
		crl, err := authority.Ledger().CRL(cmd.Context(), state.IssuerID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ca.EncodeCRLPEM(crl.Raw))
		return err
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(crlCmd)
}
