package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "cdpd", "dev", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("deployed", "jwt_secret", "s3cret", "indexer_dsn", "", MaskField("component", "vat"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "deployed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "cdpd", line["service"])
	require.Equal(t, "dev", line["env"])
	require.Equal(t, RedactedValue, line["jwt_secret"])
	require.Equal(t, "", line["indexer_dsn"])
	require.Equal(t, "vat", line["component"])
	require.Contains(t, line, "timestamp")
}

func TestSensitive(t *testing.T) {
	require.True(t, Sensitive("Authorization"))
	require.True(t, Sensitive("auth.jwt_secret"))
	require.False(t, Sensitive("ilk"))
	require.Equal(t, RedactedValue, MaskField("bearer_token", "abc").Value.String())
	require.Equal(t, "frob", MaskField("op", "frob").Value.String())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdpd.log")
	logger, closer := SetupWithOptions("cdpd", "", Options{File: path, Level: "info"})
	logger.Info("to file")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "to file")
}
