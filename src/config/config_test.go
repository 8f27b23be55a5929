package config

import (
	"os"
	"path/filepath"
	"testing"

	"trade-scanner/src/helpers"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

const validYAML = `
name: "TradeScanner"
host: "0.0.0.0"
port: 8765
log_level: "INFO"
symbols: ["AAPL", "MSFT"]
stream:
  url: "wss://socket.example.com/stocks"
  api_key: "secret"
storage:
  db_type: "sqlite"
  db_path: "scanner.db"
`

// -----------------------------------------------------------------------------

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// -----------------------------------------------------------------------------

func TestNewConfig(t *testing.T) {
	t.Run("valid file with defaults applied", func(t *testing.T) {
		cfg, err := NewConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		require.Equal(t, "TradeScanner", cfg.Name)
		require.Equal(t, 8765, cfg.Port)
		require.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols)

		// Unset values fall back to defaults
		require.Equal(t, 10, cfg.Stream.AuthTimeoutSecs)
		require.Equal(t, 90, cfg.Stream.StalenessSecs)
		require.Equal(t, 1000, cfg.Stream.Reconnect.MinMs)
		require.Equal(t, 60000, cfg.Stream.Reconnect.MaxMs)
		require.Equal(t, 10, cfg.Stream.Reconnect.MaxAttempts)
		require.Equal(t, 15, cfg.Server.HeartbeatSecs)
		require.Equal(t, 60, cfg.Server.IdleSecs)
		require.Equal(t, 500, cfg.Detector.BufferCap1)
		require.Equal(t, 60, cfg.Snapshot.PollSecs)
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := NewConfig("/nonexistent/config.yaml")
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := NewConfig(writeConfig(t, "name: [unclosed"))
		require.Error(t, err)
	})
}

// -----------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Run("missing api key is a configuration error", func(t *testing.T) {
		content := `
name: "TradeScanner"
host: "0.0.0.0"
port: 8765
symbols: ["AAPL"]
stream:
  url: "wss://socket.example.com/stocks"
storage:
  db_type: "sqlite"
  db_path: "scanner.db"
`
		_, err := NewConfig(writeConfig(t, content))
		require.Error(t, err)
		var cfgErr *helpers.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("privileged port rejected", func(t *testing.T) {
		cfg, err := NewConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		cfg.Port = 80
		require.Error(t, cfg.Validate())
	})

	t.Run("confluence weights must not exceed 100", func(t *testing.T) {
		cfg, err := NewConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		cfg.Detector.Weights = map[string]int{"trend_alignment": 60, "price_vs_vwap": 50}
		require.Error(t, cfg.Validate())
	})

	t.Run("rule minimum factors must be at least one", func(t *testing.T) {
		cfg, err := NewConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		cfg.Detector.RuleMinFactors = map[string]int{"vwap_cross": 0}
		require.Error(t, cfg.Validate())
	})

	t.Run("symbols are required", func(t *testing.T) {
		cfg, err := NewConfig(writeConfig(t, validYAML))
		require.NoError(t, err)
		cfg.Symbols = nil
		require.Error(t, cfg.Validate())
	})
}

// -----------------------------------------------------------------------------

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := NewConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Name, reloaded.Name)
	require.Equal(t, cfg.Stream.URL, reloaded.Stream.URL)
	require.Equal(t, cfg.Symbols, reloaded.Symbols)
}
