package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values. Secrets are usually
// supplied this way so the config file can be committed.
const (
	EnvTelegramToken = "OUTAGEBOT_TELEGRAM_TOKEN"
	EnvStorageDriver = "OUTAGEBOT_STORAGE_DRIVER"
	EnvStorageDSN    = "OUTAGEBOT_STORAGE_DSN"
	EnvLogLevel      = "OUTAGEBOT_LOG_LEVEL"
	EnvOpsToken      = "OUTAGEBOT_OPS_TOKEN"
)

// LoadDotEnv loads variables from path (typically ".env") into the process
// environment. A missing file is not an error; existing variables win.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides cfg fields from lookup (os.LookupEnv in production).
// Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvTelegramToken, &cfg.Telegram.Token)
	set(EnvStorageDriver, &cfg.Storage.Driver)
	set(EnvStorageDSN, &cfg.Storage.DSN)
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvOpsToken, &cfg.Ops.Token)
}
