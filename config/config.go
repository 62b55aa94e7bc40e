// Package config loads ironca settings from defaults, an optional
// ironca.yaml, IRONCA_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/operation"
)

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendBolt       = "bbolt"
	BackendPostgres   = "postgres"
	BackendFilesystem = "filesystem"
)

const (
	envPrefix  = "IRONCA"
	configName = "ironca"
)

// Config keys.
const (
	KeyDigest           = "digest"
	KeyFormat           = "format"
	KeyInteractive      = "interactive"
	KeyAssumeYes        = "assume_yes"
	KeyAllowDNSAltNames = "allow_dns_alt_names"
	KeyOutput           = "output"
	KeyDataDir          = "data_dir"
	KeyBackend          = "backend"
	KeyPostgresDSN      = "postgres_dsn"
	KeyCAName           = "ca_name"
	KeyCAPassphrase     = "ca_passphrase"
	KeyKDFProfile       = "kdf_profile"
	KeyCertValidity     = "cert_validity"
	KeyCRLValidity      = "crl_validity"
	KeyRevocationReason = "revocation_reason"
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
	KeyOIDMapping       = "oid_mapping"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Digest           string            `mapstructure:"digest"`
	Format           string            `mapstructure:"format"`
	Interactive      bool              `mapstructure:"interactive"`
	AssumeYes        bool              `mapstructure:"assume_yes"`
	AllowDNSAltNames bool              `mapstructure:"allow_dns_alt_names"`
	Output           []string          `mapstructure:"output"`
	DataDir          string            `mapstructure:"data_dir"`
	Backend          string            `mapstructure:"backend"`
	PostgresDSN      string            `mapstructure:"postgres_dsn"`
	CAName           string            `mapstructure:"ca_name"`
	CAPassphrase     string            `mapstructure:"ca_passphrase"`
	KDFProfile       string            `mapstructure:"kdf_profile"`
	CertValidity     time.Duration     `mapstructure:"cert_validity"`
	CRLValidity      time.Duration     `mapstructure:"crl_validity"`
	RevocationReason string            `mapstructure:"revocation_reason"`
	LogLevel         string            `mapstructure:"log_level"`
	LogFile          string            `mapstructure:"log_file"`
	OIDMapping       map[string]string `mapstructure:"oid_mapping"`
}

// New returns a viper instance with defaults set and environment lookup
// enabled. Nested keys are split on "::" so dotted OIDs survive as map keys.
func New() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetDefault(KeyDigest, ca.DefaultDigest)
	v.SetDefault(KeyFormat, operation.Machine.String())
	v.SetDefault(KeyInteractive, false)
	v.SetDefault(KeyAssumeYes, false)
	v.SetDefault(KeyAllowDNSAltNames, false)
	v.SetDefault(KeyOutput, []string{})
	v.SetDefault(KeyDataDir, "./ironca-data")
	v.SetDefault(KeyBackend, BackendBolt)
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyCAName, "ironca CA")
	v.SetDefault(KeyCAPassphrase, "")
	v.SetDefault(KeyKDFProfile, util.KDFProfileModerate)
	v.SetDefault(KeyCertValidity, ca.DefaultCertValidity)
	v.SetDefault(KeyCRLValidity, ca.DefaultCRLValidity)
	v.SetDefault(KeyRevocationReason, "keyCompromise")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyOIDMapping, map[string]string{})

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or ironca.yaml from the working directory and
// $HOME/.ironca when configFile is empty, and decodes the merged settings.
// A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", "."+configName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config: %w", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", ErrInvalidConfig, err)
	}
	cfg.Output = splitList(cfg.Output)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that can be checked without opening storage.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendBolt, BackendFilesystem:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidConfig, BackendPostgres, KeyPostgresDSN)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.CertValidity <= 0 || c.CRLValidity <= 0 {
		return fmt.Errorf("%w: validity periods must be positive", ErrInvalidConfig)
	}
	if _, err := util.Argon2idProfile(c.KDFProfile); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := ca.ParseReason(c.RevocationReason); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := ca.NewOIDNames(c.OIDMapping); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// OperationOptions returns the dispatcher options carried by the config.
func (c *Config) OperationOptions() operation.Options {
	return operation.Options{
		Digest:           c.Digest,
		Format:           c.Format,
		Interactive:      c.Interactive,
		AssumeYes:        c.AssumeYes,
		AllowDNSAltNames: c.AllowDNSAltNames,
		Output:           c.Output,
	}
}

// AuthorityOptions returns the ca.Authority options carried by the config.
func (c *Config) AuthorityOptions() ([]ca.Option, error) {
	names, err := ca.NewOIDNames(c.OIDMapping)
	if err != nil {
		return nil, err
	}
	reason, err := ca.ParseReason(c.RevocationReason)
	if err != nil {
		return nil, err
	}
	kdf, err := util.Argon2idProfile(c.KDFProfile)
	if err != nil {
		return nil, err
	}
	return []ca.Option{
		ca.WithOIDNames(names),
		ca.WithRevocationReason(reason),
		ca.WithCertValidity(c.CertValidity),
		ca.WithCRLValidity(c.CRLValidity),
		ca.WithPassphrase(c.CAPassphrase),
		ca.WithKDFParams(kdf),
	}, nil
}

// splitList flattens comma-separated entries, as given through the
// environment or a single flag value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
