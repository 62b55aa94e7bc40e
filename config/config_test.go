package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/config"
	"github.com/jmcleod/ironca/operation"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ca.DefaultDigest, cfg.Digest)
	assert.Equal(t, "machine", cfg.Format)
	assert.Equal(t, config.BackendBolt, cfg.Backend)
	assert.Equal(t, ca.DefaultCertValidity, cfg.CertValidity)
	assert.Equal(t, "keyCompromise", cfg.RevocationReason)
	assert.Empty(t, cfg.Output)
	assert.False(t, cfg.Interactive)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ironca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
digest: sha512
format: human
interactive: true
output: [attrs, base]
backend: filesystem
data_dir: /var/lib/ironca
cert_validity: 8760h
revocation_reason: superseded
oid_mapping:
  "1.3.6.1.4.1.34380.1.2.99": pp_custom
`), 0o600))

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "sha512", cfg.Digest)
	assert.Equal(t, "human", cfg.Format)
	assert.True(t, cfg.Interactive)
	assert.Equal(t, []string{"attrs", "base"}, cfg.Output)
	assert.Equal(t, config.BackendFilesystem, cfg.Backend)
	assert.Equal(t, "/var/lib/ironca", cfg.DataDir)
	assert.Equal(t, 8760*time.Hour, cfg.CertValidity)
	assert.Equal(t, map[string]string{"1.3.6.1.4.1.34380.1.2.99": "pp_custom"}, cfg.OIDMapping)

	op, err := operation.New("list", operation.All(), cfg.OperationOptions())
	require.NoError(t, err)
	assert.Equal(t, operation.Human, op.Format())
	assert.True(t, op.Shows(operation.SectionBase))
	assert.False(t, op.Shows(operation.SectionFingerprint))

	opts, err := cfg.AuthorityOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ironca.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: human\n"), 0o600))
	t.Setenv("IRONCA_FORMAT", "machine")
	t.Setenv("IRONCA_ASSUME_YES", "true")
	t.Setenv("IRONCA_OUTPUT", "exts,fingerprint")

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "machine", cfg.Format)
	assert.True(t, cfg.AssumeYes)
	assert.Equal(t, []string{"exts", "fingerprint"}, cfg.Output)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "backend: cassandra\n"},
		{"postgres without dsn", "backend: postgres\n"},
		{"bad reason", "revocation_reason: bored\n"},
		{"bad kdf profile", "kdf_profile: glacial\n"},
		{"bad oid", "oid_mapping:\n  \"not-an-oid\": x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ironca.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := config.Load(config.New(), path)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
