package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the referral core service
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Object storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Encryption configuration
	Encryption EncryptionConfig `mapstructure:"encryption"`

	// Package export configuration
	Export ExportConfig `mapstructure:"export"`

	// Automation scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Environment ("development" or "production")
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds object storage (S3) configuration
type StorageConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// EncryptionConfig holds encryption configuration
type EncryptionConfig struct {
	// Provider selects the key provider: "env" or "ephemeral".
	Provider string `mapstructure:"provider"`
	// MasterSecret backs the env provider. Required when provider is "env".
	MasterSecret string `mapstructure:"master_secret"`
	// AllowRawKeyExport enables the development-only raw key escape hatch.
	AllowRawKeyExport bool `mapstructure:"allow_raw_key_export"`
}

// ExportConfig holds intake package export configuration
type ExportConfig struct {
	// ObjectTTLHours is the object lifetime; objects become unreachable
	// after this window. Default 168 (7 days).
	ObjectTTLHours int `mapstructure:"object_ttl_hours"`
	// URLTTLHours is the presigned URL lifetime. Default 24. Must not
	// exceed ObjectTTLHours.
	URLTTLHours int `mapstructure:"url_ttl_hours"`
	// DefaultPackageType names packages created without an explicit type.
	DefaultPackageType string `mapstructure:"default_package_type"`
	// PackageVersion stamps the exported manifest format.
	PackageVersion string `mapstructure:"package_version"`
}

// SchedulerConfig holds automation scheduler configuration
type SchedulerConfig struct {
	Enabled                   bool `mapstructure:"enabled"`
	AutoTransitionIntervalMin int  `mapstructure:"auto_transition_interval_min"`
	SLAIntervalMin            int  `mapstructure:"sla_interval_min"`
	InactivityDays            int  `mapstructure:"inactivity_days"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/referral-core")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "referral_core")
	viper.SetDefault("database.user", "referral_core")
	viper.SetDefault("database.ssl_mode", "require")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Storage defaults
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.use_path_style", false)
	viper.SetDefault("storage.key_prefix", "intake-packages")

	// Encryption defaults
	viper.SetDefault("encryption.provider", "env")
	viper.SetDefault("encryption.allow_raw_key_export", false)

	// Export defaults: 7 day object lifetime, 24 hour URL lifetime
	viper.SetDefault("export.object_ttl_hours", 168)
	viper.SetDefault("export.url_ttl_hours", 24)
	viper.SetDefault("export.default_package_type", "intake_full")
	viper.SetDefault("export.package_version", "1.0")

	// Scheduler defaults
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.auto_transition_interval_min", 15)
	viper.SetDefault("scheduler.sla_interval_min", 60)
	viper.SetDefault("scheduler.inactivity_days", 30)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("environment", "production")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if secret := os.Getenv("ENCRYPTION_MASTER_SECRET"); secret != "" {
		config.Encryption.MasterSecret = secret
	}

	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if config.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	if config.Encryption.Provider == "env" && config.Encryption.MasterSecret == "" {
		return fmt.Errorf("encryption master secret is required for the env provider")
	}

	if config.Export.URLTTLHours <= 0 || config.Export.ObjectTTLHours <= 0 {
		return fmt.Errorf("export TTLs must be positive")
	}

	if config.Export.URLTTLHours > config.Export.ObjectTTLHours {
		return fmt.Errorf("presigned URL TTL (%dh) must not exceed object TTL (%dh)",
			config.Export.URLTTLHours, config.Export.ObjectTTLHours)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Encryption.AllowRawKeyExport && config.Environment == "production" {
		return fmt.Errorf("raw key export must not be enabled in production")
	}

	return nil
}
