package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/config"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("%w: refusing", ca.ErrPolicyViolation)))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("%w: all", ca.ErrInvalidOperation)))
	assert.Equal(t, 2, ExitCode(ca.ErrAborted))
	assert.Equal(t, 2, ExitCode(ca.ErrInterface))
	assert.Equal(t, 2, ExitCode(config.ErrInvalidConfig))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("%w: host", ca.ErrNotFound)))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("%w: disk", ca.ErrServiceFailure)))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCommandsEndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IRONCA_BACKEND", config.BackendFilesystem)
	t.Setenv("IRONCA_DATA_DIR", t.TempDir())
	t.Setenv("IRONCA_LOG_LEVEL", "error")

	out, err := run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized certificate authority CN=ironca CA")

	_, err = run(t, "generate", "node1.example.com")
	require.NoError(t, err)

	out, err = run(t, "list", "--all")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `+ "node1.example.com" (SHA256) `), out)

	_, err = run(t, "revoke", "--all")
	require.ErrorIs(t, err, ca.ErrPolicyViolation)
	assert.Equal(t, 2, ExitCode(err))

	_, err = run(t, "print", "ghost")
	require.ErrorIs(t, err, ca.ErrNotFound)
	assert.Equal(t, 3, ExitCode(err))
}
