// Package warehouse wraps a per-worker ClickHouse connection: connect-and-
// ping with bounded retry, SQL execution, and cached table-existence probes.
// Grounded on the teacher's internal/repository/repo_core.go (NewRepository's
// retry/pool-config shape), swapping pgxpool for ClickHouse's native driver
// since the warehouse here is a ClickHouse-compatible columnar store, not
// Postgres.
package warehouse

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

const (
	defaultConnectRetries = 10
	connectRetryDelay     = 1 * time.Second
)

// Config holds the connection parameters read from the environment, per
// spec.md §6.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ConfigFromEnv reads CLICKHOUSE_HOST, CLICKHOUSE_PORT (default 8123),
// CLICKHOUSE_DB, CLICKHOUSE_USER, CLICKHOUSE_PASSWORD.
func ConfigFromEnv() Config {
	port := 8123
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return Config{
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     port,
		Database: os.Getenv("CLICKHOUSE_DB"),
		User:     os.Getenv("CLICKHOUSE_USER"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
}

// Client is a per-worker warehouse handle (spec.md §4.A).
type Client struct {
	cfg Config
	db  clickhouse.Conn

	existsMu sync.RWMutex
	exists   map[string]bool // cached "exists" answers; false is never cached (spec.md: "cached (stable once true)")
}

// Connect dials the warehouse with up to `retries` attempts, `delay` apart,
// returning DatabaseConnectionError on exhaustion.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	return connectWithRetry(ctx, cfg, defaultConnectRetries, connectRetryDelay)
}

func connectWithRetry(ctx context.Context, cfg Config, retries int, delay time.Duration) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{addr},
			Auth: clickhouse.Auth{
				Database: cfg.Database,
				Username: cfg.User,
				Password: cfg.Password,
			},
			DialTimeout: 10 * time.Second,
		})
		if err == nil {
			if pingErr := conn.Ping(ctx); pingErr == nil {
				return &Client{cfg: cfg, db: conn, exists: make(map[string]bool)}, nil
			} else {
				lastErr = pingErr
			}
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return nil, shovelerr.NewDatabaseConnectionError("warehouse connect", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, shovelerr.NewDatabaseConnectionError("warehouse connect", fmt.Errorf("after %d attempts: %w", retries, lastErr))
}

// Database returns the configured database name; shovels must always
// qualify identifiers with it and never hard-code a schema name (spec.md §9
// open question).
func (c *Client) Database() string { return c.cfg.Database }

// Execute runs a statement with no result rows expected.
func (c *Client) Execute(ctx context.Context, sql string, args ...any) error {
	if err := c.db.Exec(ctx, sql, args...); err != nil {
		return shovelerr.NewDatabaseConnectionError("warehouse exec", err)
	}
	return nil
}

// Query runs a statement and returns the native driver rows for the caller
// to scan, used by shovels that need to read back warehouse state (block
// metadata windows, dependency checkpoints, join-based lookups).
func (c *Client) Query(ctx context.Context, sql string, args ...any) (clickhouse.Rows, error) {
	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, shovelerr.NewDatabaseConnectionError("warehouse query", err)
	}
	return rows, nil
}

// PrepareBatch opens a native-protocol batch insert against table, using
// async_insert/wait_for_async_insert settings so a slow merge doesn't block
// the caller, matching the original's per-statement SETTINGS clause.
func (c *Client) PrepareBatch(ctx context.Context, table string) (clickhouse.Batch, error) {
	query := "INSERT INTO " + QuoteIdentifier(table)
	batch, err := c.db.PrepareBatch(ctx, query,
		clickhouse.WithSettings(clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 1,
		}),
	)
	if err != nil {
		return nil, shovelerr.NewDatabaseConnectionError("warehouse prepare batch", err)
	}
	return batch, nil
}

// TableExists probes SHOW TABLES LIKE, caching a positive answer forever
// (tables are never dropped by this fleet) but never caching a negative one,
// per spec.md §4.A.
func (c *Client) TableExists(ctx context.Context, name string) (bool, error) {
	c.existsMu.RLock()
	if c.exists[name] {
		c.existsMu.RUnlock()
		return true, nil
	}
	c.existsMu.RUnlock()

	rows, err := c.Query(ctx, fmt.Sprintf("SHOW TABLES LIKE %s", quoteLiteral(name)))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	if found {
		c.existsMu.Lock()
		c.exists[name] = true
		c.existsMu.Unlock()
	}
	return found, nil
}

// DescribeTable returns the ordered column names of an existing table, used
// by the dynamic-schema engine's version-matching (spec.md §4.F).
func (c *Client) DescribeTable(ctx context.Context, name string) ([]string, error) {
	rows, err := c.Query(ctx, "DESCRIBE TABLE "+QuoteIdentifier(name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var colName, typ, defaultType, defaultExpr, comment, codecExpr, ttlExpr string
		if err := rows.Scan(&colName, &typ, &defaultType, &defaultExpr, &comment, &codecExpr, &ttlExpr); err != nil {
			return nil, fmt.Errorf("describe table %s: scan: %w", name, err)
		}
		cols = append(cols, colName)
	}
	return cols, nil
}

// Reconnect re-dials the warehouse, replacing the live connection. It
// satisfies internal/retry.Reconnector.
func (c *Client) Reconnect(ctx context.Context) error {
	fresh, err := connectWithRetry(ctx, c.cfg, defaultConnectRetries, connectRetryDelay)
	if err != nil {
		return err
	}
	_ = c.db.Close()
	c.db = fresh.db
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// reservedWords mirrors spec.md §4.A's fixed set of keywords requiring
// backtick quoting when used as an identifier.
var reservedWords = map[string]struct{}{
	"INDEX": {}, "ENGINE": {}, "TABLE": {}, "ORDER": {}, "BY": {},
	"PRIMARY": {}, "KEY": {}, "SELECT": {}, "FROM": {}, "WHERE": {},
	"GROUP": {}, "LIMIT": {}, "VALUES": {}, "DEFAULT": {}, "ARRAY": {},
	"NULL": {}, "PARTITION": {}, "SETTINGS": {}, "FORMAT": {},
}

// QuoteIdentifier backtick-quotes name only if it collides with a reserved
// keyword (case-insensitive), per spec.md §4.A.
func QuoteIdentifier(name string) string {
	if _, reserved := reservedWords[strings.ToUpper(name)]; reserved {
		return "`" + name + "`"
	}
	return name
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}
