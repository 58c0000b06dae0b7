package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ConnectionConfig locates the ClickHouse server. Addr is either host:port
// or a clickhouse:// DSN; settings given in a DSN take precedence.
type ConnectionConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	TLS      *tls.Config

	MaxOpenConns int
	DialTimeout  time.Duration

	// Connect attempts, doubling RetryDelay after each failure
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a connection config for a local server
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Addr:         "localhost:9000",
		Database:     "default",
		Username:     "default",
		MaxOpenConns: 10,
		DialTimeout:  10 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// options converts config into driver options.
func options(config *ConnectionConfig) (*clickhouse.Options, error) {
	var opts *clickhouse.Options
	if strings.Contains(config.Addr, "://") {
		var err error
		if opts, err = clickhouse.ParseDSN(config.Addr); err != nil {
			return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
		}
	} else {
		opts = &clickhouse.Options{
			Addr: []string{config.Addr},
			Auth: clickhouse.Auth{
				Database: config.Database,
				Username: config.Username,
				Password: config.Password,
			},
		}
	}

	if opts.TLS == nil {
		opts.TLS = config.TLS
	}
	if opts.DialTimeout == 0 && config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if opts.MaxOpenConns == 0 && config.MaxOpenConns > 0 {
		opts.MaxOpenConns = config.MaxOpenConns
		opts.MaxIdleConns = max(config.MaxOpenConns/2, 1)
	}
	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}
	if _, ok := opts.Settings["max_execution_time"]; !ok {
		opts.Settings["max_execution_time"] = 60
	}
	opts.ConnMaxLifetime = time.Hour
	return opts, nil
}

// Connect opens a connection and pings it, retrying with exponential
// backoff.
func Connect(ctx context.Context, config *ConnectionConfig) (driver.Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}
	opts, err := options(config)
	if err != nil {
		return nil, err
	}

	attempts := max(config.MaxRetries, 1)
	delay := config.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		var conn driver.Conn
		conn, err = clickhouse.Open(opts)
		if err == nil {
			if err = conn.Ping(ctx); err == nil {
				return conn, nil
			}
			conn.Close()
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	return nil, fmt.Errorf("connecting to ClickHouse at %s failed after %d attempts: %w", strings.Join(opts.Addr, ","), attempts, err)
}
