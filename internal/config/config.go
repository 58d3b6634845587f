package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables
// and an optional .env file.
type Config struct {
	Env        string `mapstructure:"APP_ENV" validate:"required,oneof=dev test prod"`
	ServerPort string `mapstructure:"SERVER_PORT" validate:"required,numeric"`

	DBHost            string        `mapstructure:"DB_HOST" validate:"required"`
	DBPort            string        `mapstructure:"DB_PORT" validate:"required,numeric"`
	DBUser            string        `mapstructure:"DB_USER" validate:"required"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME" validate:"required"`
	DBSSLMode         string        `mapstructure:"DB_SSLMODE" validate:"required"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS" validate:"min=1"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS" validate:"min=0"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnectRetries  uint64        `mapstructure:"DB_CONNECT_RETRIES"`
	AutoMigrate       bool          `mapstructure:"AUTO_MIGRATE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB" validate:"min=0"`

	SessionTTL      time.Duration `mapstructure:"SESSION_TTL" validate:"gt=0"`
	LoginRatePerSec float64       `mapstructure:"LOGIN_RATE_PER_SEC" validate:"gt=0"`
	LoginBurst      int           `mapstructure:"LOGIN_BURST" validate:"min=1"`
}

var defaults = map[string]interface{}{
	"APP_ENV":              "dev",
	"SERVER_PORT":          "3000",
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "",
	"DB_NAME":              "bankist",
	"DB_SSLMODE":           "disable",
	"DB_MAX_OPEN_CONNS":    25,
	"DB_MAX_IDLE_CONNS":    25,
	"DB_CONN_MAX_LIFETIME": "5m",
	"DB_CONNECT_RETRIES":   5,
	"AUTO_MIGRATE":         true,
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"SESSION_TTL":          "5m",
	"LOGIN_RATE_PER_SEC":   1.0,
	"LOGIN_BURST":          5,
}

// Load reads .env if present, then the environment, then validates.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// GetDBConnectionString returns the lib/pq key/value DSN.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// GetMigrationURL returns the same database as a postgres:// URL.
func (c *Config) GetMigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}
