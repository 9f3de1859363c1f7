// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"events"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	UsersTable         string `envconfig:"USERS_TABLE_NAME" default:"users"`
	EventsTable        string `envconfig:"EVENTS_TABLE_NAME" default:"events"`
	RegistrationsTable string `envconfig:"REGISTRATIONS_TABLE_NAME" default:"registrations"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	StoreOpTimeout  time.Duration `envconfig:"STORE_OP_TIMEOUT" default:"2s"`
	EngineOpTimeout time.Duration `envconfig:"ENGINE_OP_TIMEOUT" default:"5s"`
	EngineRetries   int           `envconfig:"ENGINE_RETRIES" default:"5"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}

// DSN builds a libpq-compatible connection string for pgxpool.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// URL builds a pgx5 URL for the migration runner.
func (c Config) URL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}
