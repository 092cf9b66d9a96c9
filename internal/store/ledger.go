package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

const unitColumn = "_unit"

// Ledger is a table that grows one unit at a time. A unit's rows and its
// completion marker are written in one transaction.
type Ledger[T any] struct {
	db    *sql.DB
	codec Codec[T]
}

// OpenLedger opens or creates the ledger file at path.
func OpenLedger[T any](ctx context.Context, path string, codec Codec[T]) (*Ledger[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "store: create dir")
	}
	db, err := openSQLite(path, "WAL")
	if err != nil {
		return nil, err
	}
	for _, ddl := range []string{
		metaMigration,
		codec.Table.createSQL(Column{Name: unitColumn, Type: "TEXT NOT NULL"}),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent("idx_"+codec.Table.Name+"_unit"), quoteIdent(codec.Table.Name), quoteIdent(unitColumn)),
		`CREATE TABLE IF NOT EXISTS _units (unit TEXT PRIMARY KEY, row_count INTEGER NOT NULL, completed_at TEXT NOT NULL DEFAULT (datetime('now')))`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "store: migrate ledger %s", codec.Table.Name)
		}
	}
	return &Ledger[T]{db: db, codec: codec}, nil
}

// Done reports whether unit has been completed.
func (l *Ledger[T]) Done(ctx context.Context, unit string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _units WHERE unit = ?`, unit).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "store: check unit %s", unit)
	}
	return n > 0, nil
}

// Append replaces any rows previously written for unit and marks it complete.
func (l *Ledger[T]) Append(ctx context.Context, unit string, rows []T) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(l.codec.Table.Name), quoteIdent(unitColumn))
	if _, err := tx.ExecContext(ctx, del, unit); err != nil {
		return eris.Wrapf(err, "store: clear unit %s", unit)
	}
	if err := insertRows(ctx, tx, l.codec, rows, unit); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO _units (unit, row_count) VALUES (?, ?)`, unit, len(rows)); err != nil {
		return eris.Wrapf(err, "store: mark unit %s", unit)
	}
	return eris.Wrapf(tx.Commit(), "store: commit unit %s", unit)
}

// Units lists completed units in completion order.
func (l *Ledger[T]) Units(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT unit FROM _units ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list units")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "store: scan unit")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate units")
}

// All returns every row of every completed unit.
func (l *Ledger[T]) All(ctx context.Context) ([]T, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (SELECT unit FROM _units) ORDER BY rowid",
		l.codec.Table.columnList(), quoteIdent(l.codec.Table.Name), quoteIdent(unitColumn))
	return scanAll(ctx, l.db, l.codec, q)
}

// Close releases the underlying database.
func (l *Ledger[T]) Close() error {
	return l.db.Close()
}
