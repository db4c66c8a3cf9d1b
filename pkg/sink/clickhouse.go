package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// ClickHouseConfig holds ClickHouse sink configuration.
type ClickHouseConfig struct {
	Hosts       []string
	Database    string
	Table       string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseSink inserts events into a table with columns
// (timestamp DateTime64(3), vendor String, product String, raw String).
type ClickHouseSink struct {
	cfg    ClickHouseConfig
	conn   driver.Conn
	logger *logger.Logger
}

// NewClickHouseSink opens a connection and pings the server.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig, log *logger.Logger) (*ClickHouseSink, error) {
	if cfg.Table == "" {
		cfg.Table = "vendor_events"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		ConnMaxLifetime: time.Hour,
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return &ClickHouseSink{
		cfg:    cfg,
		conn:   conn,
		logger: log.With("component", "clickhouse-sink", "table", cfg.Table),
	}, nil
}

func (c *ClickHouseSink) Name() string { return "clickhouse" }

// Send inserts the batch.
func (c *ClickHouseSink) Send(ctx context.Context, vendor, product string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (timestamp, vendor, product, raw)", c.cfg.Table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now()
	for _, e := range Decorate(vendor, product, events, now) {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		ts := now
		if s, ok := e[FieldTime].(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				ts = t
			}
		}
		if err := batch.Append(ts, vendor, product, string(raw)); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	c.logger.Debug("events inserted", "vendor", vendor, "product", product, "count", len(events))
	return nil
}

func (c *ClickHouseSink) Close() error {
	return c.conn.Close()
}
