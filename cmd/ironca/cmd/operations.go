package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/dispatch"
	"github.com/jmcleod/ironca/operation"
)

var operationCommands = []struct {
	method operation.Method
	short  string
}{
	{operation.List, "List pending requests, or certificates with --all or --signed"},
	{operation.Sign, "Sign pending certificate requests"},
	{operation.Generate, "Generate a key and signed certificate for hosts"},
	{operation.Revoke, "Revoke host certificates"},
	{operation.Destroy, "Remove certificates, requests and keys of hosts"},
	{operation.Print, "Print certificates in text form"},
	{operation.Verify, "Verify certificates against the CA chain and CRL"},
	{operation.Fingerprint, "Print certificate or request fingerprints"},
	{operation.Reinventory, "Rebuild the serial inventory"},
}

func newOperationCmd(method operation.Method, short string) *cobra.Command {
	var (
		all, signed bool
		gen         ca.GenerateOptions
	)
	c := &cobra.Command{
		Use:   method.String() + " [hosts...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := operation.ParseSelector(all, signed, args)
			if err != nil {
				return err
			}
			opts := cfg.OperationOptions()
			opts.Generate = gen
			op, err := operation.NewFor(method, selector, opts)
			if err != nil {
				return err
			}
			return apply(cmd, op)
		},
	}
	if !method.Subjectless() || method == operation.List {
		c.Flags().BoolVarP(&all, "all", "a", false, "Operate on every host")
		c.Flags().BoolVar(&signed, "signed", false, "Operate on every signed host")
	}
	if method == operation.Generate {
		c.Flags().StringSliceVar(&gen.DNSAltNames, "dns-alt-names", nil, "DNS alternative names for the certificate")
		c.Flags().StringToStringVar(&gen.Attributes, "attribute", nil, "CSR attribute as name=value (short name or OID)")
		c.Flags().StringToStringVar(&gen.ExtensionRequests, "extension", nil, "Extension request as name=value (short name or OID)")
	}
	return c
}

func apply(cmd *cobra.Command, op *operation.Operation) error {
	ctx := cmd.Context()
	pass, err := passphrase(cmd)
	if err != nil {
		return err
	}
	authority, closeFn, err := openAuthority(ctx, pass)
	if err != nil {
		return err
	}
	defer closeFn()

	d := dispatch.New(ca.NewState(authority, authority.Store()),
		dispatch.WithOutput(cmd.OutOrStdout()),
		dispatch.WithConfirmer(newConfirmer(cmd.OutOrStdout())),
		dispatch.WithLogger(logger))
	return d.Apply(ctx, op)
}

func passphrase(cmd *cobra.Command) (string, error) {
	if !askPassphrase {
		return "", nil
	}
	return readPassphrase(cmd.ErrOrStderr())
}

func init() {
	for _, oc := range operationCommands {
		rootCmd.AddCommand(newOperationCmd(oc.method, oc.short))
	}
}
