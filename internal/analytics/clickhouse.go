package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/portalads/internal/models"
)

var _ Sink = (*ClickHouseSink)(nil)

// ClickHouseSink writes events to the banner_events table.
type ClickHouseSink struct {
	DB *sql.DB
}

// EventCount is an aggregated row of banner_events.
type EventCount struct {
	BannerID  int    `json:"banner_id"`
	EventType string `json:"event_type"`
	Count     uint64 `json:"count"`
}

const createBannerEvents = `CREATE TABLE IF NOT EXISTS banner_events (
       event_id     String,
       timestamp    DateTime64(3),
       event_type   LowCardinality(String),
       banner_id    Int32,
       slot_name    Nullable(String),
       scope        Nullable(String),
       session_id   String,
       device_type  Nullable(String),
       country      Nullable(String)
   ) ENGINE=MergeTree() ORDER BY (banner_id, event_type, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the banner_events table exists.
func InitClickHouse(dsn string) (*ClickHouseSink, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createBannerEvents); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &ClickHouseSink{DB: db}, nil
}

// Record inserts one event row.
func (c *ClickHouseSink) Record(ctx context.Context, ev models.EngagementEvent) error {
	if c == nil || c.DB == nil {
		return ErrUnavailable
	}
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	stmt := `INSERT INTO banner_events (event_id, timestamp, event_type, banner_id, slot_name, scope, session_id, device_type, country) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := c.DB.ExecContext(ctx, stmt, ev.ID, ts, ev.EventType, int32(ev.BannerID),
		nullString(ev.SlotName), nullString(ev.Scope), ev.SessionID,
		nullString(ev.DeviceType), nullString(ev.Country)); err != nil {
		return fmt.Errorf("insert %s event: %w", ev.EventType, err)
	}
	return nil
}

// CountsSince aggregates events per banner and type from since onwards.
func (c *ClickHouseSink) CountsSince(ctx context.Context, since time.Time) ([]EventCount, error) {
	if c == nil || c.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := c.DB.QueryContext(ctx,
		`SELECT banner_id, event_type, count() FROM banner_events WHERE timestamp >= ? GROUP BY banner_id, event_type ORDER BY banner_id, event_type`,
		since)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var out []EventCount
	for rows.Next() {
		var ec EventCount
		var id int32
		if err := rows.Scan(&id, &ec.EventType, &ec.Count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		ec.BannerID = int(id)
		out = append(out, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close terminates the ClickHouse connection.
func (c *ClickHouseSink) Close() error {
	if c != nil && c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
