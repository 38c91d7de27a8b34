package history

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_history (
	id          UUID PRIMARY KEY,
	filename    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	lines       INTEGER NOT NULL,
	print_time  DOUBLE PRECISION NOT NULL,
	filament    DOUBLE PRECISION NOT NULL,
	layer_count INTEGER NOT NULL,
	layer_total INTEGER NOT NULL,
	anomalies   INTEGER NOT NULL,
	result      JSONB
)`

const entryColumns = `id, filename, created_at, lines, print_time, filament, layer_count, layer_total, anomalies, result`

// PostgresStore keeps entries in a PostgreSQL table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	limit int
}

// NewPostgresStore connects to dsn and creates the table if needed.
func NewPostgresStore(ctx context.Context, dsn string, limit int) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.HistoryError("connect", fmt.Errorf("parse connection config: %w", err))
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.HistoryError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.HistoryError("connect", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, errors.HistoryError("migrate", err)
	}
	return &PostgresStore{pool: pool, limit: limit}, nil
}

func (s *PostgresStore) Add(ctx context.Context, e Entry) error {
	var result []byte
	if e.Result != nil {
		var err error
		if result, err = json.Marshal(e.Result); err != nil {
			return errors.HistoryError("add", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.HistoryError("add", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO analysis_history (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename, created_at = EXCLUDED.created_at,
			lines = EXCLUDED.lines, print_time = EXCLUDED.print_time,
			filament = EXCLUDED.filament, layer_count = EXCLUDED.layer_count,
			layer_total = EXCLUDED.layer_total, anomalies = EXCLUDED.anomalies,
			result = EXCLUDED.result`,
		e.ID, e.Filename, e.CreatedAt, e.Lines, e.PrintTime, e.Filament,
		e.LayerCount, e.LayerTotal, e.Anomalies, result)
	if err != nil {
		return errors.HistoryError("add", err)
	}

	if s.limit > 0 {
		_, err = tx.Exec(ctx, `DELETE FROM analysis_history WHERE id IN (
			SELECT id FROM analysis_history ORDER BY created_at DESC OFFSET $1)`, s.limit)
		if err != nil {
			return errors.HistoryError("trim", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.HistoryError("add", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e      Entry
		result []byte
	)
	if err := row.Scan(&e.ID, &e.Filename, &e.CreatedAt, &e.Lines, &e.PrintTime, &e.Filament,
		&e.LayerCount, &e.LayerTotal, &e.Anomalies, &result); err != nil {
		return Entry{}, err
	}
	if len(result) > 0 {
		e.Result = &analyzer.Result{}
		if err := json.Unmarshal(result, e.Result); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM analysis_history WHERE id = $1`, id)
	e, err := scanEntry(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, errors.HistoryError("get", err)
	}
	return e, nil
}

// listQuery builds the filtered, paged SELECT for opts.
func listQuery(opts ListOptions) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if !opts.Since.IsZero() {
		args = append(args, opts.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !opts.Before.IsZero() {
		args = append(args, opts.Before)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + entryColumns + ` FROM analysis_history`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if opts.Order == "asc" {
		sb.WriteString(" ORDER BY created_at ASC")
	} else {
		sb.WriteString(" ORDER BY created_at DESC")
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if opts.Start > 0 {
		args = append(args, opts.Start)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}
	return sb.String(), args
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Entry, int, error) {
	query, args := listQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.HistoryError("list", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.HistoryError("list", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.HistoryError("list", err)
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_history`).Scan(&count); err != nil {
		return nil, 0, errors.HistoryError("count", err)
	}
	return out, count, nil
}

func (s *PostgresStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*),
		COALESCE(SUM(print_time), 0), COALESCE(SUM(filament), 0), COALESCE(MAX(print_time), 0)
		FROM analysis_history`).Scan(&t.TotalJobs, &t.TotalPrintTime, &t.TotalFilament, &t.LongestPrint)
	if err != nil {
		return Totals{}, errors.HistoryError("totals", err)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_history WHERE id = $1`, id)
	if err != nil {
		return errors.HistoryError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE analysis_history`); err != nil {
		return errors.HistoryError("reset", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
