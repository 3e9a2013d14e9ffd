package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is a transaction that rebinds placeholders like DB does.
type Tx struct {
	tx     *sql.Tx
	driver Driver
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, Rebind(t.driver, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, Rebind(t.driver, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, Rebind(t.driver, query), args...)
}

func (t *Tx) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	return insertID(ctx, t.driver, t.tx, query, args...)
}

// WithTx starts a transaction, runs fn, and commits if fn returns nil.
// If fn returns an error or panics, the transaction is rolled back. The error
// returned by fn is passed through untouched so callers can classify it.
//
// Typical usage:
//
//	err := db.WithTx(ctx, d, nil, func(tx *db.Tx) error {
//	    _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
//	    return err
//	})
func WithTx(ctx context.Context, d *DB, opts *sql.TxOptions, fn func(*Tx) error) (err error) {
	if d == nil || d.SQL == nil {
		return errors.New("db: DB is nil")
	}
	sqlTx, err := d.SQL.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("db: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		if e := sqlTx.Commit(); e != nil {
			err = fmt.Errorf("db: commit: %w", e)
		}
	}()
	err = fn(&Tx{tx: sqlTx, driver: d.Driver})
	return
}
