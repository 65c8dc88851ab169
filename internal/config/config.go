package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN" default:""`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" default:""`
	DB       int    `env:"REDIS_DB" default:"0"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER" default:""`
}

type LedgerConfig struct {
	StartingCredits int64 `env:"LEDGER_STARTING_CREDITS" default:"0"`
	MaxBalance      int64 `env:"LEDGER_MAX_BALANCE" default:"0"`
	MaxRetries      int   `env:"LEDGER_MAX_RETRIES" default:"5"`
	SessionCost     int64 `env:"LEDGER_SESSION_COST" default:"1"`
}
