package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultMaxFileSize = 20 * 1024 * 1024

type Config struct {
	TelegramToken        string `mapstructure:"TELEGRAM_TOKEN"`
	TelegramDebug        bool   `mapstructure:"TELEGRAM_DEBUG"`
	TelegramAPIEndpoint  string `mapstructure:"TELEGRAM_API_ENDPOINT"`
	TelegramFileEndpoint string `mapstructure:"TELEGRAM_FILE_ENDPOINT"`

	WorkspaceMode string `mapstructure:"WORKSPACE_MODE"`
	WorkspaceDir  string `mapstructure:"WORKSPACE_DIR"`
	MaxFileSize   int64  `mapstructure:"MAX_FILE_SIZE"`

	AllowlistEnabled bool    `mapstructure:"ALLOWLIST_ENABLED"`
	AllowedUsersRaw  string  `mapstructure:"ALLOWED_USERS"`
	AllowedUsers     []int64 `mapstructure:"-"`

	MaxConcurrentRelays int           `mapstructure:"MAX_CONCURRENT_RELAYS"`
	DownloadTimeout     time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	ExtractTimeout      time.Duration `mapstructure:"EXTRACT_TIMEOUT"`
	UploadTimeout       time.Duration `mapstructure:"UPLOAD_TIMEOUT"`

	DSN string `mapstructure:"DB_DSN"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	RequestClaimTTL time.Duration `mapstructure:"REQUEST_CLAIM_TTL"`

	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3Region          string `mapstructure:"S3_REGION"`
	S3BucketName      string `mapstructure:"S3_BUCKET_NAME"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`

	ServerPort string `mapstructure:"SERVER_PORT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"TELEGRAM_TOKEN":         "",
	"TELEGRAM_DEBUG":         false,
	"TELEGRAM_API_ENDPOINT":  "",
	"TELEGRAM_FILE_ENDPOINT": "",
	"WORKSPACE_MODE":         "disk",
	"WORKSPACE_DIR":          "temp_downloads",
	"MAX_FILE_SIZE":          DefaultMaxFileSize,
	"ALLOWLIST_ENABLED":      false,
	"ALLOWED_USERS":          "",
	"MAX_CONCURRENT_RELAYS":  4,
	"DOWNLOAD_TIMEOUT":       2 * time.Minute,
	"EXTRACT_TIMEOUT":        2 * time.Minute,
	"UPLOAD_TIMEOUT":         time.Minute,
	"DB_DSN":                 "",
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"REQUEST_CLAIM_TTL":      15 * time.Minute,
	"S3_ENDPOINT":            "",
	"S3_REGION":              "us-east-1",
	"S3_BUCKET_NAME":         "",
	"S3_ACCESS_KEY_ID":       "",
	"S3_SECRET_ACCESS_KEY":   "",
	"SERVER_PORT":            "",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "text",
}

// Load читает конфигурацию из .env файла (если он есть) и переменных окружения.
// Переменные окружения имеют приоритет над файлом.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", envFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	users, err := parseUserIDs(cfg.AllowedUsersRaw)
	if err != nil {
		return nil, err
	}
	cfg.AllowedUsers = users

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	switch c.WorkspaceMode {
	case "disk":
		if c.WorkspaceDir == "" {
			return fmt.Errorf("WORKSPACE_DIR is required in disk mode")
		}
	case "memory":
	default:
		return fmt.Errorf("WORKSPACE_MODE must be disk or memory, got %q", c.WorkspaceMode)
	}

	if c.MaxFileSize < 0 {
		return fmt.Errorf("MAX_FILE_SIZE must not be negative")
	}

	if c.MaxConcurrentRelays <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RELAYS must be positive")
	}

	if c.AllowlistEnabled && len(c.AllowedUsers) == 0 {
		return fmt.Errorf("ALLOWED_USERS is required when ALLOWLIST_ENABLED is set")
	}

	if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}

	return nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_USERS: invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
