package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags warehouse sessions in pg_stat_activity.
const ApplicationName = "sheetingest"

// Config holds the PostgreSQL warehouse connection settings. URL, when set,
// takes precedence over the discrete fields.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// StatementTimeout bounds a single COPY or query. Zero leaves the server
	// default in place.
	StatementTimeout time.Duration
}

// DSN renders the connection string.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connection wraps the pool used by the PostgreSQL warehouse.
type Connection struct {
	Pool *pgxpool.Pool
}

// NewConnection opens and pings a pool.
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	runtime := poolConfig.ConnConfig.RuntimeParams
	runtime["application_name"] = ApplicationName
	if config.StatementTimeout > 0 {
		runtime["statement_timeout"] = strconv.FormatInt(config.StatementTimeout.Milliseconds(), 10)
	}

	// A run appends sequentially; a small pool is enough.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{Pool: pool}, nil
}

// Close closes the pool.
func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, c.Pool, fn); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

// DefaultConfig returns settings for a local PostgreSQL.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		Password:         "admin",
		DBName:           "sheetingest",
		SSLMode:          "disable",
		StatementTimeout: time.Minute,
	}
}
