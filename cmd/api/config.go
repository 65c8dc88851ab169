package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/creditledger/internal/config"
)

const (
	driverPostgres = "postgres"
	driverRedis    = "redis"
	driverMemory   = "memory"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"10s"`
	StoreDriver     string        `env:"STORE_DRIVER" default:"postgres"`

	Postgres config.PostgresConfig
	Redis    config.RedisConfig
	Auth     config.AuthConfig
	Ledger   config.LedgerConfig
}

func (c *apiConfig) validate() error {
	switch c.StoreDriver {
	case driverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("PG_DSN is required for the postgres store")
		}
	case driverRedis, driverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET must not be empty")
	}

	return nil
}
