package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	AuthConfig     AuthConfig     `json:"auth"`
	LicenseConfig  LicenseConfig  `json:"license"`
	RedisConfig    RedisConfig    `json:"redis"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	MetricsConfig  MetricsConfig  `json:"metrics"`
	VaultConfig    VaultConfig    `json:"vault"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"` // empty = allow all
}

type DatabaseConfig struct {
	Driver   string `json:"driver"` // postgres or memory
	URL      string `json:"url"`    // overrides host/port/... when set
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

type AuthConfig struct {
	JWTSecret            string        `json:"jwt_secret"`
	Issuer               string        `json:"issuer"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	BcryptCost           int           `json:"bcrypt_cost"`
	MinPasswordLength    int           `json:"min_password_length"`
}

// LicenseConfig holds activation and trial policy
type LicenseConfig struct {
	TrialDurationDays      int  `json:"trial_duration_days"`
	DefaultKeyDurationDays int  `json:"default_key_duration_days"`
	MaxBatchSize           int  `json:"max_batch_size"`
	AllowStackedActivation bool `json:"allow_stacked_activation"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"` // KV v2 path, e.g. secret/data/printer-api
	CACert     string `json:"ca_cert"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DatabaseConfig: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "printer_app",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 2,
		},
		AuthConfig: AuthConfig{
			JWTSecret:            "dev-jwt-secret",
			Issuer:               "printer-web-api",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 30 * 24 * time.Hour,
			BcryptCost:           12,
			MinPasswordLength:    6,
		},
		LicenseConfig: LicenseConfig{
			TrialDurationDays:      3,
			DefaultKeyDurationDays: 365,
			MaxBatchSize:           100,
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		MetricsConfig: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		VaultConfig: VaultConfig{
			Address:    "http://127.0.0.1:8200",
			SecretPath: "secret/data/printer-api",
		},
	}
}

// Load reads .env, then config.json (or CONFIG_FILE), then applies environment overrides
func Load() (*Config, error) {
	// A missing .env is the normal case in production
	_ = godotenv.Load()

	cfg := Default()

	path := getEnvOrDefault("CONFIG_FILE", "config.json")
	if fileCfg, err := loadFromFile(path, cfg); err == nil {
		cfg = fileCfg
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string, base *Config) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// Decode over the defaults so omitted keys keep their default values
	cfg := *base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("PORT", getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = splitAndTrim(origins)
	}

	// Database
	cfg.DatabaseConfig.Driver = getEnvOrDefault("DB_DRIVER", cfg.DatabaseConfig.Driver)
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Name)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", cfg.DatabaseConfig.MaxConns)
	cfg.DatabaseConfig.MinConns = getEnvIntOrDefault("DB_MIN_CONNS", cfg.DatabaseConfig.MinConns)

	// Auth
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET_KEY", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Issuer = getEnvOrDefault("JWT_ISSUER", cfg.AuthConfig.Issuer)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("JWT_ACCESS_TOKEN_EXPIRES", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("JWT_REFRESH_TOKEN_EXPIRES", cfg.AuthConfig.RefreshTokenDuration)
	cfg.AuthConfig.BcryptCost = getEnvIntOrDefault("BCRYPT_COST", cfg.AuthConfig.BcryptCost)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("MIN_PASSWORD_LENGTH", cfg.AuthConfig.MinPasswordLength)

	// License policy
	cfg.LicenseConfig.TrialDurationDays = getEnvIntOrDefault("TRIAL_DURATION_DAYS", cfg.LicenseConfig.TrialDurationDays)
	cfg.LicenseConfig.DefaultKeyDurationDays = getEnvIntOrDefault("DEFAULT_KEY_DURATION_DAYS", cfg.LicenseConfig.DefaultKeyDurationDays)
	cfg.LicenseConfig.MaxBatchSize = getEnvIntOrDefault("KEY_MAX_BATCH_SIZE", cfg.LicenseConfig.MaxBatchSize)
	cfg.LicenseConfig.AllowStackedActivation = getEnvBoolOrDefault("ALLOW_STACKED_ACTIVATION", cfg.LicenseConfig.AllowStackedActivation)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Metrics
	cfg.MetricsConfig.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.MetricsConfig.Enabled)
	cfg.MetricsConfig.Path = getEnvOrDefault("METRICS_PATH", cfg.MetricsConfig.Path)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)
}

// Validate checks the loaded configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerConfig.Port)
	}

	switch c.DatabaseConfig.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseConfig.Driver)
	}

	if c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.ServerConfig.ProductionMode && c.AuthConfig.JWTSecret == Default().AuthConfig.JWTSecret && !c.VaultConfig.Enabled {
		return fmt.Errorf("JWT_SECRET_KEY must be set in production mode")
	}
	if c.AuthConfig.AccessTokenDuration <= 0 || c.AuthConfig.RefreshTokenDuration <= 0 {
		return fmt.Errorf("token durations must be positive")
	}

	if c.LicenseConfig.TrialDurationDays < 0 {
		return fmt.Errorf("trial_duration_days must not be negative")
	}
	if c.LicenseConfig.DefaultKeyDurationDays < 1 {
		return fmt.Errorf("default_key_duration_days must be at least 1")
	}
	if c.LicenseConfig.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1")
	}

	return nil
}

// PostgresDSN returns the connection string for the configured database
func (c DatabaseConfig) PostgresDSN() string {
	if c.URL != "" {
		// Hosting providers hand out postgres:// URLs; pgx accepts both schemes
		if u, err := url.Parse(c.URL); err == nil && u.Scheme == "postgresql" {
			return c.URL
		}
		return strings.Replace(c.URL, "postgres://", "postgresql://", 1)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
