package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/fx"
)

type Config struct {
	AccessToken        string
	Port               string
	ScanRoot           string
	ToolPath           string
	SettingsFile       string
	LogLevel           string
	LogFormat          string
	Concurrency        int
	Destination        string
	PostAction         string
	BackupDir          string
	IgnoreBadFiles     bool
	JournalFilePath    string
	JournalSizeLimitMB int
	WatchRoot          bool
	TLSEnabled         bool
	TLSCertDir         string
	Settings           Settings
}

func NewConfig() (*Config, error) {
	cfg := &Config{
		AccessToken:        getEnv("ACCESS_TOKEN", ""),
		Port:               getEnv("PORT", "8080"),
		ScanRoot:           getEnv("SCAN_ROOT", ""),
		ToolPath:           getEnv("BSARCH_PATH", ""),
		SettingsFile:       getEnv("SETTINGS_FILE", "/etc/unpackrr/settings.yaml"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", ""),
		Concurrency:        getEnvInt("EXTRACT_CONCURRENCY", 0),
		Destination:        getEnv("EXTRACT_DESTINATION", ""),
		PostAction:         getEnv("POST_ACTION", "backup"),
		BackupDir:          getEnv("BACKUP_DIR", ""),
		IgnoreBadFiles:     getEnvBool("IGNORE_BAD_FILES", true),
		JournalFilePath:    getEnv("JOURNAL_FILE_PATH", ""),
		JournalSizeLimitMB: getEnvInt("JOURNAL_SIZE_LIMIT_MB", 50),
		WatchRoot:          getEnvBool("WATCH_ROOT", false),
		TLSEnabled:         getEnvBool("TLS_ENABLED", false),
		TLSCertDir:         getEnv("TLS_CERT_DIR", "./ssl"),
	}

	settings, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg.Settings = settings

	return cfg, nil
}

func (c *Config) JournalEnabled() bool {
	return c.JournalFilePath != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

var Module = fx.Options(
	fx.Provide(NewConfig),
)
