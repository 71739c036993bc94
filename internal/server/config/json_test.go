package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr":                      "www.example:9000",
		"database_dsn":                       "vault.db",
		"secret_key":                         "my_secret_key",
		"access_token_validity_duration":     "15m",
		"refresh_token_validity_duration":    "12h",
		"refresh_token_remember_me_duration": "720h",
		"lockout_threshold":                  3,
		"lockout_duration":                   "30m",
		"min_client_version":                 "1.1.0",
		"retention_daily_days":               7,
		"retention_weekly_weeks":             4,
		"retention_monthly_months":           12,
		"retention_versions":                 3,
		"retention_count":                    10,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddr)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 15*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 12*time.Hour, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, 720*time.Hour, cfg.RefreshTokenRememberMeDuration)
		assert.Equal(t, 3, cfg.LockoutThreshold)
		assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
		assert.Equal(t, "1.1.0", cfg.MinClientVersion)
		assert.Equal(t, 7, cfg.RetentionDailyDays)
		assert.Equal(t, 10, cfg.RetentionCount)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddr:     "defaults:1234",
			DatabaseDSN:      "vault.db",
			SecretKey:        "key",
			LockoutThreshold: 5,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddr)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 5, cfg.LockoutThreshold)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
