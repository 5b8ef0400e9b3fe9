// Package db provides the PostgreSQL connection pool, schema migrations and
// pool health for vidq's Postgres-backed stores.
package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// URL, when set, is used as is and the discrete fields are ignored.
	URL string `yaml:"url,omitempty"`

	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	Database        string        `yaml:"database,omitempty"`
	User            string        `yaml:"user,omitempty"`
	Password        string        `yaml:"-"`
	SSLMode         string        `yaml:"sslmode,omitempty"`
	MaxConns        int32         `yaml:"max_conns,omitempty"`
	MinConns        int32         `yaml:"min_conns,omitempty"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time,omitempty"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout,omitempty"`
}

// DefaultConfig returns a Config for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "vidq",
		User:            "vidq",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// ApplyEnv overlays VIDQ_DB_* environment variables onto c.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VIDQ_DB_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("VIDQ_DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("VIDQ_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("VIDQ_DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("VIDQ_DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("VIDQ_DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("VIDQ_DB_SSLMODE"); v != "" {
		c.SSLMode = v
	}
	if v := os.Getenv("VIDQ_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			c.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("VIDQ_DB_MIN_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			c.MinConns = int32(n)
		}
	}
}

// ConnectionString returns URL when set, otherwise a postgres:// URL built
// from the discrete fields.
func (c *Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate checks if the config has required fields set.
func (c *Config) Validate() error {
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max connections (%d) must be >= min connections (%d)", c.MaxConns, c.MinConns)
	}
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	return nil
}

// Connect creates a connection pool and verifies it with a ping.
// The caller is responsible for calling pool.Close() when done.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
