// Package sqlstore persists noise records and counters in a SQL database
// through sqlx. Two drivers are supported: "sqlite" (modernc.org/sqlite, pure
// Go, the default for single-node deployments) and "postgres" (lib/pq).
//
// Queries are written once with '?' placeholders and rebound for the
// driver, so the same statements serve both dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS noise_records (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		kind             TEXT NOT NULL,
		level            DOUBLE PRECISION,
		lat              DOUBLE PRECISION,
		lng              DOUBLE PRECISION,
		spatial_key      TEXT NOT NULL DEFAULT '',
		address          TEXT NOT NULL DEFAULT '',
		recorded_at      BIGINT NOT NULL DEFAULT 0,
		visible          BOOLEAN NOT NULL DEFAULT TRUE,
		complaint_origin TEXT NOT NULL DEFAULT '',
		complaint_impact TEXT NOT NULL DEFAULT '',
		sensation        TEXT NOT NULL DEFAULT '',
		comment          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_noise_records_recorded_at ON noise_records (recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_noise_records_owner ON noise_records (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_noise_records_spatial_key ON noise_records (spatial_key)`,
	`CREATE TABLE IF NOT EXISTS counters (
		scope       TEXT NOT NULL,
		counter_key TEXT NOT NULL,
		value       BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (scope, counter_key)
	)`,
	`CREATE TABLE IF NOT EXISTS counter_ops (
		op_id      TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`,
}

// Store implements repository.RecordStore and repository.CounterStore.
type Store struct {
	db *sqlx.DB
}

var (
	_ repository.RecordStore  = (*Store)(nil)
	_ repository.CounterStore = (*Store)(nil)
)

// Open connects to dsn with driver and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single writer connection avoids SQLITE_BUSY between pool members.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. The schema is not touched.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
}

type recordRow struct {
	ID              string          `db:"id"`
	OwnerID         string          `db:"owner_id"`
	Kind            string          `db:"kind"`
	Level           sql.NullFloat64 `db:"level"`
	Lat             sql.NullFloat64 `db:"lat"`
	Lng             sql.NullFloat64 `db:"lng"`
	SpatialKey      string          `db:"spatial_key"`
	Address         string          `db:"address"`
	RecordedAt      int64           `db:"recorded_at"`
	Visible         bool            `db:"visible"`
	ComplaintOrigin string          `db:"complaint_origin"`
	ComplaintImpact string          `db:"complaint_impact"`
	Sensation       string          `db:"sensation"`
	Comment         string          `db:"comment"`
}

const recordColumns = `id, owner_id, kind, level, lat, lng, spatial_key, address, recorded_at,
	visible, complaint_origin, complaint_impact, sensation, comment`

func toRow(rec *entities.NoiseRecord) recordRow {
	row := recordRow{
		ID:              rec.ID,
		OwnerID:         rec.OwnerID,
		Kind:            string(rec.Kind),
		SpatialKey:      rec.SpatialKey,
		Address:         rec.Address,
		Visible:         rec.Visible,
		ComplaintOrigin: rec.ComplaintOrigin,
		ComplaintImpact: rec.ComplaintImpact,
		Sensation:       rec.Sensation,
		Comment:         rec.Comment,
	}
	if entities.FiniteLevel(rec.Level) {
		row.Level = sql.NullFloat64{Float64: *rec.Level, Valid: true}
	}
	if rec.Position != nil {
		row.Lat = sql.NullFloat64{Float64: rec.Position.Latitude, Valid: true}
		row.Lng = sql.NullFloat64{Float64: rec.Position.Longitude, Valid: true}
	}
	if rec.HasTimestamp() {
		row.RecordedAt = rec.Timestamp.UnixNano()
	}
	return row
}

func (row recordRow) toEntity() *entities.NoiseRecord {
	rec := &entities.NoiseRecord{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		Kind:            entities.Kind(row.Kind),
		SpatialKey:      row.SpatialKey,
		Address:         row.Address,
		Visible:         row.Visible,
		ComplaintOrigin: row.ComplaintOrigin,
		ComplaintImpact: row.ComplaintImpact,
		Sensation:       row.Sensation,
		Comment:         row.Comment,
	}
	if row.Level.Valid {
		rec.Level = entities.LevelOf(row.Level.Float64)
	}
	if row.Lat.Valid && row.Lng.Valid {
		rec.Position = &entities.Location{Latitude: row.Lat.Float64, Longitude: row.Lng.Float64}
	}
	if row.RecordedAt != 0 {
		rec.Timestamp = time.Unix(0, row.RecordedAt).UTC()
	}
	return rec
}

func (s *Store) Create(ctx context.Context, rec *entities.NoiseRecord) error {
	query := `INSERT INTO noise_records (` + recordColumns + `) VALUES (
		:id, :owner_id, :kind, :level, :lat, :lng, :spatial_key, :address, :recorded_at,
		:visible, :complaint_origin, :complaint_impact, :sensation, :comment)`
	if _, err := s.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entities.NoiseRecord, error) {
	query := s.db.Rebind(`SELECT ` + recordColumns + ` FROM noise_records WHERE id = ?`)

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, unavailable(err)
	}
	return row.toEntity(), nil
}

// Update rewrites the mutable columns of an existing record. Identity,
// level, position and timestamp are never changed after creation.
func (s *Store) Update(ctx context.Context, rec *entities.NoiseRecord) error {
	query := `UPDATE noise_records SET
		address = :address,
		visible = :visible,
		complaint_origin = :complaint_origin,
		complaint_impact = :complaint_impact,
		sensation = :sensation,
		comment = :comment
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, toRow(rec))
	if err != nil {
		return unavailable(err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM noise_records WHERE id = ?`), id)
	if err != nil {
		return unavailable(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return repository.ErrRecordNotFound
	}
	return nil
}

func (s *Store) FetchRecords(ctx context.Context, filter repository.RecordFilter) ([]*entities.NoiseRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.VisibleOnly {
		where = append(where, "visible = ?")
		args = append(args, true)
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if !filter.MinTimestamp.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, filter.MinTimestamp.UnixNano())
	}
	if filter.SpatialKeyPrefix != "" {
		where = append(where, "spatial_key LIKE ?")
		args = append(args, filter.SpatialKeyPrefix+"%")
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM noise_records")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY recorded_at DESC, id DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(b.String()), args...); err != nil {
		return nil, unavailable(err)
	}

	records := make([]*entities.NoiseRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toEntity()
	}
	return records, nil
}

// Apply records opID and upserts every delta in one transaction. The
// counter_ops insert is the idempotency guard: when it touches no row the
// operation was already applied and the transaction is rolled back.
func (s *Store) Apply(ctx context.Context, opID string, deltas ...entities.CounterDelta) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	if opID != "" {
		res, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO counter_ops (op_id, applied_at) VALUES (?, ?) ON CONFLICT (op_id) DO NOTHING`),
			opID, time.Now().UnixNano())
		if err != nil {
			return unavailable(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable(err)
		}
		if n == 0 {
			return nil
		}
	}

	upsert := tx.Rebind(`INSERT INTO counters (scope, counter_key, value) VALUES (?, ?, ?)
		ON CONFLICT (scope, counter_key) DO UPDATE SET value = counters.value + excluded.value`)
	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx, upsert, string(d.Scope), d.Key, d.Delta); err != nil {
			return unavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, scope entities.CounterScope, key string) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value,
		s.db.Rebind(`SELECT value FROM counters WHERE scope = ? AND counter_key = ?`),
		string(scope), key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return value, nil
}
