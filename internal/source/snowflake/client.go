package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/playerpulse/internal/config"
	"github.com/ignite/playerpulse/internal/pkg/logger"
	"github.com/ignite/playerpulse/internal/schema"
)

// Client pulls raw telemetry rows from a Snowflake warehouse. The rows are
// handed to the schema normalizer untouched, so warehouse column naming goes
// through the same alias mapping as file uploads.
type Client struct {
	cfg config.WarehouseConfig
	db  *sql.DB
}

// NewClient opens a Snowflake connection from warehouse configuration.
func NewClient(cfg config.WarehouseConfig) (*Client, error) {
	db, err := sql.Open("snowflake", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{cfg: cfg, db: db}, nil
}

// buildDSN renders user:password@account/database/schema?warehouse=xxx.
func buildDSN(cfg config.WarehouseConfig) string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}
	return dsn
}

// Close closes the warehouse connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the warehouse connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EventCount returns the number of rows in the configured events table.
func (c *Client) EventCount(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.cfg.EventsTable)
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting warehouse events: %w", err)
	}
	return count, nil
}

// FetchEvents reads up to limit rows from the events table as a raw table.
// Column names come straight from the warehouse schema; every value is
// stringified so the normalizer owns all type coercion.
func (c *Client) FetchEvents(ctx context.Context, limit int) (*schema.RawTable, error) {
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT ?`, c.cfg.EventsTable)
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying warehouse events: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading warehouse columns: %w", err)
	}

	table := &schema.RawTable{Columns: columns}
	raw := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning warehouse row: %w", err)
		}
		row := make([]string, len(columns))
		for i, v := range raw {
			row[i] = stringify(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating warehouse rows: %w", err)
	}

	logger.Info("Warehouse events fetched",
		"table", c.cfg.EventsTable,
		"rows", len(table.Rows))
	return table, nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
