package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/ironca/config"
	"github.com/jmcleod/ironca/internal/logging"
)

// caID namespaces every record this CLI writes.
const caID = "ironca"

var (
	v             = config.New()
	configFile    string
	askPassphrase bool
	cfg           *config.Config
	logger        *slog.Logger
	logCloser     io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ironca",
	Short: "ironca is a certificate authority for fleet nodes",
	Long: `Sign, list, revoke and inspect node certificates issued by an ironca
certificate authority.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(v, configFile); err != nil {
			return err
		}
		logger, logCloser, err = logging.New(logging.Options{
			Level:   cfg.LogLevel,
			Console: cmd.ErrOrStderr(),
			File:    cfg.LogFile,
		})
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command and exits with the code for its error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitCode(err))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to the configuration file (default ./ironca.yaml)")
	flags.String("data-dir", "", "Directory for persistent data")
	flags.String("backend", "", "Storage backend: memory, bbolt, postgres or filesystem")
	flags.String("postgres-dsn", "", "PostgreSQL connection string for the postgres backend")
	flags.String("digest", "", "Fingerprint digest algorithm")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.String("format", "", "List format: machine or human")
	flags.StringSlice("output", nil, "List sections: attrs, exts, fingerprint, base")
	flags.Bool("interactive", false, "Confirm each request before signing")
	flags.BoolP("assume-yes", "y", false, "Answer yes to every confirmation")
	flags.Bool("allow-dns-alt-names", false, "Sign requests carrying DNS alternative names")
	flags.BoolVar(&askPassphrase, "ask-passphrase", false, "Prompt for the CA key passphrase")

	bind(flags.Lookup("data-dir"), config.KeyDataDir)
	bind(flags.Lookup("backend"), config.KeyBackend)
	bind(flags.Lookup("postgres-dsn"), config.KeyPostgresDSN)
	bind(flags.Lookup("digest"), config.KeyDigest)
	bind(flags.Lookup("log-level"), config.KeyLogLevel)
	bind(flags.Lookup("log-file"), config.KeyLogFile)
	bind(flags.Lookup("format"), config.KeyFormat)
	bind(flags.Lookup("output"), config.KeyOutput)
	bind(flags.Lookup("interactive"), config.KeyInteractive)
	bind(flags.Lookup("assume-yes"), config.KeyAssumeYes)
	bind(flags.Lookup("allow-dns-alt-names"), config.KeyAllowDNSAltNames)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ironca version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		printBanner(cmd.OutOrStdout())
	},
}

func bind(flag *pflag.Flag, key string) {
	if flag == nil {
		panic(errors.New("binding unknown flag to " + key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
