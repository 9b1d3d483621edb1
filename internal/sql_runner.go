package internal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SQLRunner executes read queries for SQLDocumentService.
type SQLRunner interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	QueryCount(ctx context.Context, query string, args ...any) (int64, error)
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxRunner struct {
	pool pgxQuerier
}

// NewPgxRunner runs queries on a pgx pool (or anything with its Query method).
func NewPgxRunner(pool pgxQuerier) SQLRunner {
	return &pgxRunner{pool: pool}
}

func (r *pgxRunner) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (r *pgxRunner) QueryCount(ctx context.Context, query string, args ...any) (int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlRunner struct {
	db sqlQuerier
}

// NewSQLRunner runs queries through database/sql; the DuckDB engine uses it.
func NewSQLRunner(db sqlQuerier) SQLRunner {
	return &sqlRunner{db: db}
}

func (r *sqlRunner) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *sqlRunner) QueryCount(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
