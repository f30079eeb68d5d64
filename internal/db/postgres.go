package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/models"
)

var _ BannerStore = (*Postgres)(nil)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS banners (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    slot_name TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT 'general',
    image_ref TEXT NOT NULL,
    target_link TEXT,
    width INT NOT NULL DEFAULT 0,
    height INT NOT NULL DEFAULT 0,
    display_order INT NOT NULL DEFAULT 0,
    rotation_interval_seconds INT NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    schedule_start TIMESTAMPTZ NULL,
    schedule_end TIMESTAMPTZ NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT banners_schedule_order CHECK (schedule_start IS NULL OR schedule_end IS NULL OR schedule_end > schedule_start)
);

-- Delivery and validation both read eligible banners per slot
CREATE INDEX IF NOT EXISTS idx_banners_slot_active ON banners (slot_name, active);
CREATE INDEX IF NOT EXISTS idx_banners_slot_scope ON banners (slot_name, scope);
`

const bannerColumns = `id, name, slot_name, scope, image_ref, target_link, width, height, display_order, rotation_interval_seconds, active, schedule_start, schedule_end, created_at, updated_at`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBanner(row rowScanner) (models.Banner, error) {
	var b models.Banner
	var link sql.NullString
	var start, end sql.NullTime
	if err := row.Scan(&b.ID, &b.Name, &b.SlotName, &b.Scope, &b.ImageRef, &link, &b.Width, &b.Height,
		&b.DisplayOrder, &b.RotationIntervalSeconds, &b.Active, &start, &end, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	if link.Valid {
		b.TargetLink = link.String
	}
	if start.Valid {
		t := start.Time
		b.ScheduleStart = &t
	}
	if end.Valid {
		t := end.Time
		b.ScheduleEnd = &t
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ListBanners retrieves banners matching the filter ordered by ID.
func (p *Postgres) ListBanners(ctx context.Context, f BannerFilter) ([]models.Banner, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+bannerColumns+` FROM banners
        WHERE ($1 = '' OR slot_name = $1) AND (NOT $2 OR active) ORDER BY id`, f.SlotName, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("query banners: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.Banner
	for rows.Next() {
		b, err := scanBanner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan banner: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// GetBanner fetches a single banner by ID.
func (p *Postgres) GetBanner(ctx context.Context, id int) (models.Banner, error) {
	b, err := scanBanner(p.DB.QueryRowContext(ctx, `SELECT `+bannerColumns+` FROM banners WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, models.ErrNotFound
	}
	if err != nil {
		return b, fmt.Errorf("get banner: %w", err)
	}
	return b, nil
}

// InsertBanner inserts a new banner and fills in the generated ID and timestamps.
func (p *Postgres) InsertBanner(ctx context.Context, b *models.Banner) error {
	b.Scope = b.NormalizedScope()
	err := p.DB.QueryRowContext(ctx, `INSERT INTO banners (
        name, slot_name, scope, image_ref, target_link, width, height,
        display_order, rotation_interval_seconds, active, schedule_start, schedule_end
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		b.Name, b.SlotName, b.Scope, b.ImageRef, nullString(b.TargetLink), b.Width, b.Height,
		b.DisplayOrder, b.RotationIntervalSeconds, b.Active, nullTime(b.ScheduleStart), nullTime(b.ScheduleEnd),
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert banner: %w", err)
	}
	return nil
}

// UpdateBanner updates an existing banner.
func (p *Postgres) UpdateBanner(ctx context.Context, b *models.Banner) error {
	b.Scope = b.NormalizedScope()
	err := p.DB.QueryRowContext(ctx, `UPDATE banners SET
        name=$1, slot_name=$2, scope=$3, image_ref=$4, target_link=$5, width=$6, height=$7,
        display_order=$8, rotation_interval_seconds=$9, active=$10, schedule_start=$11,
        schedule_end=$12, updated_at=NOW() WHERE id=$13 RETURNING created_at, updated_at`,
		b.Name, b.SlotName, b.Scope, b.ImageRef, nullString(b.TargetLink), b.Width, b.Height,
		b.DisplayOrder, b.RotationIntervalSeconds, b.Active, nullTime(b.ScheduleStart), nullTime(b.ScheduleEnd), b.ID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update banner: %w", err)
	}
	return nil
}

// DeleteBanner removes a banner by ID.
func (p *Postgres) DeleteBanner(ctx context.Context, id int) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM banners WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete banner: %w", err)
	}
	return expectRow(res)
}

// SetBannerActive toggles the active flag of a banner.
func (p *Postgres) SetBannerActive(ctx context.Context, id int, active bool) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE banners SET active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return fmt.Errorf("set banner active: %w", err)
	}
	return expectRow(res)
}

// DeactivateBanners turns off the listed banners that are still active.
func (p *Postgres) DeactivateBanners(ctx context.Context, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ids64 := make([]int64, len(ids))
	for i, id := range ids {
		ids64[i] = int64(id)
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE banners SET active=FALSE, updated_at=NOW() WHERE active AND id = ANY($1)`, pq.Array(ids64))
	if err != nil {
		return 0, fmt.Errorf("deactivate banners: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate banners rows: %w", err)
	}
	return int(n), nil
}

// WithSlotLock holds a transaction-scoped advisory lock keyed by slot while
// fn runs, so concurrent editors on any instance serialize their capacity
// check and write. The lock is released when the transaction ends, even if
// the connection goes back to the pool after a failed rollback.
func (p *Postgres) WithSlotLock(ctx context.Context, slotName string, fn func(ctx context.Context) error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("slot lock tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slotLockKey(slotName)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Error("release slot lock", zap.Error(rbErr), zap.String("slot", slotName))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

func slotLockKey(slotName string) string { return "portalads:slot:" + slotName }

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
