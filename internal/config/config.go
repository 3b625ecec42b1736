package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration of the management service
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Auth        AuthConfig
	JWT         JWTConfig
	Migrate     bool
	HTTPAddr    string
	TrustProxy  bool
	GeoIPDBPath string
	UIDistDir   string // admin web UI build, served under /admin when present
	Metrics     bool
	LogLevel    string
}

// DatabaseConfig selects the gorm dialect and connection string
type DatabaseConfig struct {
	Driver string // mysql, postgres or sqlite
	DSN    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds sync requests per client IP
type RateLimitConfig struct {
	Enabled   bool
	Limit     int
	WindowSec int
}

// AuthConfig holds the shared secrets and admin credentials
type AuthConfig struct {
	SyncToken         string
	AdminToken        string
	AdminUser         string
	AdminPassword     string
	AdminPasswordHash string // bcrypt; takes precedence over AdminPassword
}

// JWTConfig holds admin session token settings. Login is disabled when Secret is empty.
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// lookup resolves a value with priority ENV > INI > default.
// file is nil when only the environment is consulted.
type lookup struct {
	file *ini.File
}

func (l lookup) str(envKey, section, key, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if l.file != nil {
		if value := l.file.Section(section).Key(key).String(); value != "" {
			return value
		}
	}
	return defaultValue
}

func (l lookup) int(envKey, section, key string, defaultValue int) int {
	if value := os.Getenv(envKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Int(); err == nil {
			return value
		}
	}
	return defaultValue
}

func (l lookup) bool(envKey, section, key string, defaultValue bool) bool {
	if value := os.Getenv(envKey); value != "" {
		return value == "1" || strings.EqualFold(value, "true")
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Bool(); err == nil {
			return value
		}
	}
	return defaultValue
}

// Load loads configuration from environment variables (and .env when present)
func Load() (*Config, error) {
	_ = godotenv.Load()
	return build(lookup{})
}

// LoadFromINI loads configuration from an INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}
	_ = godotenv.Load()
	return build(lookup{file: cfgFile})
}

func build(l lookup) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(l.str("DB_DRIVER", "database", "driver", "mysql")),
			DSN:    l.str("DB_DSN", "database", "dsn", ""),
		},
		Redis: RedisConfig{
			Enabled:  l.bool("REDIS_ENABLED", "redis", "enabled", false),
			Addr:     l.str("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: l.str("REDIS_PASS", "redis", "pass", ""),
			DB:       l.int("REDIS_DB", "redis", "db", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:   l.bool("SYNC_RATE_LIMIT_ENABLED", "rate_limit", "enabled", true),
			Limit:     l.int("SYNC_RATE_LIMIT", "rate_limit", "limit", 30),
			WindowSec: l.int("SYNC_RATE_LIMIT_WINDOW_SEC", "rate_limit", "window_sec", 60),
		},
		Auth: AuthConfig{
			SyncToken:         l.str("SYNC_TOKEN", "auth", "sync_token", ""),
			AdminToken:        l.str("ADMIN_TOKEN", "auth", "admin_token", ""),
			AdminUser:         l.str("ADMIN_USER", "auth", "admin_user", ""),
			AdminPassword:     l.str("ADMIN_PASSWORD", "auth", "admin_password", ""),
			AdminPasswordHash: l.str("ADMIN_PASSWORD_HASH", "auth", "admin_password_hash", ""),
		},
		JWT: JWTConfig{
			Secret:        l.str("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: l.int("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 720),
			Issuer:        l.str("JWT_ISSUER", "jwt", "issuer", "go_cfgsync"),
		},
		Migrate:     l.bool("MIGRATE", "app", "migrate", false),
		HTTPAddr:    l.str("HTTP_ADDR", "http", "addr", ":8080"),
		TrustProxy:  l.bool("TRUST_PROXY", "http", "trust_proxy", false),
		GeoIPDBPath: l.str("GEOIP_DB_PATH", "geoip", "db_path", ""),
		UIDistDir:   l.str("UI_DIST_DIR", "server", "ui_dist_dir", "ui/dist"),
		Metrics:     l.bool("METRICS_ENABLED", "metrics", "enabled", true),
		LogLevel:    l.str("LOG_LEVEL", "log", "level", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.Auth.SyncToken == "" {
		return fmt.Errorf("SYNC_TOKEN is required")
	}
	if c.Auth.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.WindowSec <= 0 {
		return fmt.Errorf("rate limit and window must be positive")
	}
	return nil
}
