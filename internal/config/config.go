package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Migrate  bool
	HTTPAddr string
	Router   RouterConfig
	Sweeper  SweeperConfig
	Notifier NotifierConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// RouterConfig holds task queue routing configuration.
// Apps is the set of application namespaces that get a dedicated queue;
// tasks outside these namespaces fall back to DefaultQueue.
type RouterConfig struct {
	Apps         []string
	DefaultQueue string
}

// SweeperConfig holds regression sweeper configuration
type SweeperConfig struct {
	Enabled      bool
	IntervalSec  int
	StalenessSec int
}

// NotifierConfig holds push notification configuration
type NotifierConfig struct {
	Enabled    bool
	URL        string
	Topic      string
	TimeoutSec int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "taskops"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Router: RouterConfig{
			Apps:         splitList(getEnv("ROUTER_APPS", "")),
			DefaultQueue: getEnv("ROUTER_DEFAULT_QUEUE", "default"),
		},
		Sweeper: SweeperConfig{
			Enabled:      getEnv("SWEEPER_ENABLED", "1") == "1",
			IntervalSec:  getEnvInt("SWEEPER_INTERVAL_SEC", 60),
			StalenessSec: getEnvInt("SWEEP_STALENESS_SEC", 60),
		},
		Notifier: NotifierConfig{
			Enabled:    getEnv("NOTIFIER_ENABLED", "0") == "1",
			URL:        getEnv("NOTIFIER_URL", ""),
			Topic:      getEnv("NOTIFIER_TOPIC", "taskops"),
			TimeoutSec: getEnvInt("NOTIFIER_TIMEOUT_SEC", 5),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Notifier.Enabled && cfg.Notifier.URL == "" {
		return nil, fmt.Errorf("NOTIFIER_URL is required when the notifier is enabled")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// splitList splits a comma-separated value into trimmed, non-empty items
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	// Load INI file
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Helper function: get value with priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "taskops"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		Router: RouterConfig{
			Apps:         splitList(getValue("ROUTER_APPS", "router", "apps", "")),
			DefaultQueue: getValue("ROUTER_DEFAULT_QUEUE", "router", "default_queue", "default"),
		},
		Sweeper: SweeperConfig{
			Enabled:      getValueBool("SWEEPER_ENABLED", "sweeper", "enabled", true),
			IntervalSec:  getValueInt("SWEEPER_INTERVAL_SEC", "sweeper", "interval_sec", 60),
			StalenessSec: getValueInt("SWEEP_STALENESS_SEC", "sweeper", "staleness_sec", 60),
		},
		Notifier: NotifierConfig{
			Enabled:    getValueBool("NOTIFIER_ENABLED", "notifier", "enabled", false),
			URL:        getValue("NOTIFIER_URL", "notifier", "url", ""),
			Topic:      getValue("NOTIFIER_TOPIC", "notifier", "topic", "taskops"),
			TimeoutSec: getValueInt("NOTIFIER_TIMEOUT_SEC", "notifier", "timeout_sec", 5),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}
