package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	Storage  StorageConfig  `yaml:"storage"`
	Chat     ChatConfig     `yaml:"chat"`
	Status   StatusConfig   `yaml:"status"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Mode            string `yaml:"mode"` // gin mode: debug, release, test
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

// DatabaseConfig database settings
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // "mysql" or "sqlite"
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	Path            string `yaml:"path"` // sqlite file path
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// GetDSN returns the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// RedisConfig redis settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig token settings
type JWTConfig struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"` // seconds
	RefreshIn int    `yaml:"refresh_in"` // seconds
}

// CORSConfig cross-origin settings (comma separated origins)
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// StorageConfig S3-compatible media storage
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	CDNURL          string `yaml:"cdn_url"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
}

// ChatConfig live channel tuning
type ChatConfig struct {
	TypingTimeout   time.Duration `yaml:"typing_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	EventsPerSecond float64       `yaml:"events_per_second"`
	EventBurst      int           `yaml:"event_burst"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// StatusConfig ephemeral status posts
type StatusConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	SweepCron string        `yaml:"sweep_cron"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8082, Mode: "debug", ShutdownTimeout: 10},
		Database: DatabaseConfig{
			Driver:          "mysql",
			Host:            "localhost",
			Port:            3306,
			User:            "chat",
			DBName:          "angple_chat",
			Path:            "angple-chat.db",
			MaxIdleConns:    10,
			MaxOpenConns:    50,
			ConnMaxLifetime: 3600,
		},
		Redis:   RedisConfig{Enabled: true, Host: "localhost", Port: 6379, PoolSize: 10},
		JWT:     JWTConfig{ExpiresIn: 900, RefreshIn: 604800},
		CORS:    CORSConfig{AllowOrigins: "http://localhost:3000"},
		Storage: StorageConfig{Region: "auto", BasePath: "chat/", MaxUploadMB: 50},
		Chat: ChatConfig{
			TypingTimeout:   3 * time.Second,
			MaxMessageSize:  64 * 1024,
			EventsPerSecond: 20,
			EventBurst:      40,
			SendBuffer:      256,
		},
		Status: StatusConfig{TTL: 24 * time.Hour, SweepCron: "*/10 * * * *"},
	}
}

// Load reads a YAML config file on top of the defaults and applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults + env only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no sane fallback
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (JWT_SECRET)")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Chat.TypingTimeout <= 0 {
		c.Chat.TypingTimeout = 3 * time.Second
	}
	if c.Status.TTL <= 0 {
		c.Status.TTL = 24 * time.Hour
	}
	return nil
}

func applyEnv(cfg *Config) {
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Mode, "GIN_MODE")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Database.Path, "DB_PATH")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.CORS.AllowOrigins, "CORS_ALLOW_ORIGINS")

	setBool(&cfg.Storage.Enabled, "STORAGE_ENABLED")
	setString(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&cfg.Storage.Region, "STORAGE_REGION")
	setString(&cfg.Storage.AccessKeyID, "STORAGE_ACCESS_KEY_ID")
	setString(&cfg.Storage.SecretAccessKey, "STORAGE_SECRET_ACCESS_KEY")
	setString(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	setString(&cfg.Storage.CDNURL, "STORAGE_CDN_URL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// LogResolved prints the effective configuration without secrets
func LogResolved(cfg *Config) {
	pkglogger.GetLogger().Info().
		Int("port", cfg.Server.Port).
		Str("db_driver", cfg.Database.Driver).
		Str("db_host", cfg.Database.Host).
		Str("db_name", cfg.Database.DBName).
		Bool("redis", cfg.Redis.Enabled).
		Bool("storage", cfg.Storage.Enabled).
		Str("cors", cfg.CORS.AllowOrigins).
		Dur("typing_timeout", cfg.Chat.TypingTimeout).
		Dur("status_ttl", cfg.Status.TTL).
		Str("status_sweep_cron", cfg.Status.SweepCron).
		Msg("config resolved")
}
