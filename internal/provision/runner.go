package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner is the database surface the workflow drives. The production
// implementation wraps a pgx pool; tests substitute a scripted fake.
type Runner interface {
	// Ping runs a trivial identity query over a live connection.
	Ping(ctx context.Context) error
	// ApplyAtomic executes a multi-statement SQL batch inside one
	// transaction; any statement error rolls the whole batch back.
	ApplyAtomic(ctx context.Context, sql string) error
	// Exec runs a single statement outside a batch.
	Exec(ctx context.Context, sql string, args ...any) error
	// QueryStrings returns the first column of every result row.
	QueryStrings(ctx context.Context, sql string, args ...any) ([]string, error)
	// QueryInt returns a single integer scalar.
	QueryInt(ctx context.Context, sql string, args ...any) (int64, error)
	// DropAndRecreateSchema drops the namespace with CASCADE and recreates
	// it empty. Returns the raw error when the server refuses (permissions).
	DropAndRecreateSchema(ctx context.Context, name string) error
}

// PgRunner implements Runner over a pgx connection pool.
type PgRunner struct {
	pool *pgxpool.Pool
}

func NewPgRunner(pool *pgxpool.Pool) (*PgRunner, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PgRunner{pool: pool}, nil
}

func (r *PgRunner) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return err
	}
	if one != 1 {
		return fmt.Errorf("identity query returned %d", one)
	}
	return nil
}

func (r *PgRunner) ApplyAtomic(ctx context.Context, sql string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql)
		return err
	})
}

func (r *PgRunner) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := r.pool.Exec(ctx, sql, args...)
	return err
}

func (r *PgRunner) QueryStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgRunner) QueryInt(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PgRunner) DropAndRecreateSchema(ctx context.Context, name string) error {
	ident := pgx.Identifier{name}.Sanitize()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DROP SCHEMA IF EXISTS `+ident+` CASCADE`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `CREATE SCHEMA `+ident)
		return err
	})
}
