package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/internal/logging"
)

func TestParseLevel(t *testing.T) {
	level, err := logging.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = logging.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := logging.New(logging.Options{Level: "warn", Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", slog.String("host", "a"))
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "msg=shown host=a")
}

func TestFanoutToFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	var console bytes.Buffer
	logger, closer, err := logging.New(logging.Options{
		Level:   "trace",
		Console: &console,
		File:    "/ironca.log",
		Fs:      fs,
	})
	require.NoError(t, err)

	logger.Log(t.Context(), logging.LevelTrace, "deep", slog.String("serial", "01"))
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "level=TRACE")

	data, err := afero.ReadFile(fs, "/ironca.log")
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record))
	assert.Equal(t, "deep", record["msg"])
	assert.Equal(t, "TRACE", record["level"])
	assert.Equal(t, "01", record["serial"])
}
