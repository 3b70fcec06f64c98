package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config selects the database and sizes the connection pool. Zero values
// take the defaults below.
type Config struct {
	DSN string

	MaxConns        int32         // 10
	MinConns        int32         // 1
	MaxConnLifetime time.Duration // 5m
	ConnectTimeout  time.Duration // 10s

	// MigrateOnStart creates the executions table if it is missing.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the pool limits.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConns, 10)
	pc.MinConns = orDefault(c.MinConns, 1)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 5*time.Minute)
	pc.ConnConfig.ConnectTimeout = orDefault(c.ConnectTimeout, 10*time.Second)
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
