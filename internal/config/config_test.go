package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFromEnvFile(t *testing.T) {
	p := writeEnv(t, `TELEGRAM_TOKEN=123:abc
WORKSPACE_MODE=memory
MAX_FILE_SIZE=0
ALLOWLIST_ENABLED=true
ALLOWED_USERS=1001, 1002
DOWNLOAD_TIMEOUT=30s
MAX_CONCURRENT_RELAYS=8
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.Equal(t, "memory", cfg.WorkspaceMode)
	assert.Equal(t, int64(0), cfg.MaxFileSize)
	assert.True(t, cfg.AllowlistEnabled)
	assert.Equal(t, []int64{1001, 1002}, cfg.AllowedUsers)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, time.Minute, cfg.UploadTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrentRelays)
}

func TestLoadDefaultsWithoutEnvFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TelegramToken)
	assert.Equal(t, "disk", cfg.WorkspaceMode)
	assert.Equal(t, "temp_downloads", cfg.WorkspaceDir)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
	assert.False(t, cfg.AllowlistEnabled)
	assert.Empty(t, cfg.AllowedUsers)
	assert.Equal(t, 4, cfg.MaxConcurrentRelays)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	p := writeEnv(t, "TELEGRAM_TOKEN=file-token\nLOG_LEVEL=info\n")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{"missing token", "WORKSPACE_MODE=disk\n"},
		{"bad mode", "TELEGRAM_TOKEN=t\nWORKSPACE_MODE=tape\n"},
		{"negative size", "TELEGRAM_TOKEN=t\nMAX_FILE_SIZE=-1\n"},
		{"allow-list without users", "TELEGRAM_TOKEN=t\nALLOWLIST_ENABLED=true\n"},
		{"bad user id", "TELEGRAM_TOKEN=t\nALLOWED_USERS=alice\n"},
		{"s3 key without secret", "TELEGRAM_TOKEN=t\nS3_ACCESS_KEY_ID=minio\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_TOKEN", "")
			_, err := Load(writeEnv(t, tt.env))
			assert.Error(t, err)
		})
	}
}
