package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config is built once at startup and shared by pointer with the sync components
type Config struct {
	BaseURL      string
	SyncToken    string
	AppVersion   string
	DBPath       string
	SyncOnStart  bool
	StartupDelay time.Duration
	DailyHour    int
	DailyMinute  int
	UTCOffset    int // hours east of UTC for the daily trigger
	HTTPTimeout  time.Duration
	LocalAddr    string
	LocalToken   string
	LogLevel     string
}

// Zone returns the fixed-offset zone the daily trigger is evaluated in
func (c *Config) Zone() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffset), c.UTCOffset*3600)
}

// Load reads .env, then the optional INI file, then the environment (ENV > INI > default)
func Load(iniPath string) (*Config, error) {
	_ = godotenv.Load()

	var file *ini.File
	if iniPath != "" {
		f, err := ini.Load(iniPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load INI file: %w", err)
		}
		file = f
	}

	getValue := func(envKey, section, key, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if file != nil {
			if value := file.Section(section).Key(key).String(); value != "" {
				return value
			}
		}
		return defaultValue
	}

	getValueInt := func(envKey, section, key string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if file != nil && file.Section(section).HasKey(key) {
			if value, err := file.Section(section).Key(key).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, section, key string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || strings.EqualFold(value, "true")
		}
		if file != nil && file.Section(section).HasKey(key) {
			if value, err := file.Section(section).Key(key).Bool(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	cfg := &Config{
		BaseURL:      strings.TrimSpace(getValue("CFGSYNC_URL", "management", "url", "")),
		SyncToken:    strings.TrimSpace(getValue("CFGSYNC_SYNC_TOKEN", "management", "token", "")),
		AppVersion:   getValue("CFGSYNC_APP_VERSION", "agent", "app_version", "dev"),
		DBPath:       getValue("CFGSYNC_DB_PATH", "agent", "db_path", defaultDBPath()),
		SyncOnStart:  getValueBool("CFGSYNC_SYNC_ON_START", "schedule", "sync_on_start", true),
		StartupDelay: time.Duration(getValueInt("CFGSYNC_STARTUP_DELAY_SEC", "schedule", "startup_delay_sec", 3600)) * time.Second,
		DailyHour:    getValueInt("CFGSYNC_DAILY_HOUR", "schedule", "daily_hour", 4),
		DailyMinute:  getValueInt("CFGSYNC_DAILY_MINUTE", "schedule", "daily_minute", 0),
		UTCOffset:    getValueInt("CFGSYNC_UTC_OFFSET_HOURS", "schedule", "utc_offset_hours", 8),
		HTTPTimeout:  time.Duration(getValueInt("CFGSYNC_HTTP_TIMEOUT_SEC", "management", "timeout_sec", 60)) * time.Second,
		LocalAddr:    getValue("CFGSYNC_AGENT_ADDR", "agent", "http_addr", "127.0.0.1:9090"),
		LocalToken:   getValue("CFGSYNC_AGENT_TOKEN", "agent", "token", ""),
		LogLevel:     getValue("LOG_LEVEL", "log", "level", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks schedule values only; a missing URL or token surfaces on every sync attempt
func (c *Config) validate() error {
	if c.DailyHour < 0 || c.DailyHour > 23 {
		return fmt.Errorf("daily hour must be 0-23, got %d", c.DailyHour)
	}
	if c.DailyMinute < 0 || c.DailyMinute > 59 {
		return fmt.Errorf("daily minute must be 0-59, got %d", c.DailyMinute)
	}
	if c.UTCOffset < -12 || c.UTCOffset > 14 {
		return fmt.Errorf("utc offset must be -12..14, got %d", c.UTCOffset)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("startup delay must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	return nil
}

func defaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cfgsync", "agent.db")
	}
	return filepath.Join(".", "agent.db")
}
