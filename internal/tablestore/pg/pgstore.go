package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
)

// Store keeps logical tables in two relations: sheet_tables holds the table
// name and header row, sheet_rows holds one jsonb field map per row. Row
// order is the bigserial insertion order, mirroring spreadsheet row order.
type Store struct {
	db *sql.DB
}

var _ tablestore.Store = (*Store)(nil)

// Open connects to PostgreSQL with pool defaults tuned for a small service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) EnsureTable(ctx context.Context, table string, header []string) error {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// ON CONFLICT DO NOTHING makes concurrent first-time creators race
	// safely: the loser sees "already exists" as success.
	_, err = s.db.ExecContext(ctx, `
		insert into sheet_tables(name, header)
		values ($1, $2)
		on conflict (name) do nothing
	`, table, headerJSON)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Rows(ctx context.Context, table string) ([]tablestore.Row, error) {
	if err := s.tableExists(ctx, table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select fields from sheet_rows
		where table_name = $1
		order by id
	`, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []tablestore.Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError(err)
		}
		row := tablestore.Row{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) AppendRow(ctx context.Context, table string, row tablestore.Row) error {
	fieldsJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sheet_rows(table_name, fields)
		values ($1, $2)
	`, table, fieldsJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return tablestore.ErrTableNotFound
		}
		return mapError(err)
	}
	return nil
}

func (s *Store) UpdateRow(ctx context.Context, table, keyColumn, key string, fields tablestore.Row) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	// First match in row order only; jsonb || overwrites just the named
	// fields.
	res, err := s.db.ExecContext(ctx, `
		update sheet_rows set fields = fields || $4::jsonb
		where id = (
			select id from sheet_rows
			where table_name = $1 and fields->>$2 = $3
			order by id
			limit 1
		)
	`, table, keyColumn, key, fieldsJSON)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		if err := s.tableExists(ctx, table); err != nil {
			return err
		}
		return tablestore.ErrRowNotFound
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from sheet_tables where name = $1`, table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return tablestore.ErrTableNotFound
	}
	if err != nil {
		return mapError(err)
	}
	return nil
}

// mapError converts driver failures into the adapter's error taxonomy.
// SQLSTATE class 53 covers exhausted server resources (connection slots,
// memory), the closest analogue of a remote quota.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "53" {
		return fmt.Errorf("%w: %s", tablestore.ErrRateLimited, pgErr.Code)
	}
	return fmt.Errorf("%w: %v", tablestore.ErrUnavailable, err)
}
