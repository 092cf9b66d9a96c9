package store

import (
	"context"
	"database/sql"
	"os"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// openSQLite opens a SQLite file with the given journal mode.
func openSQLite(path, journal string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=" + journal,
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return db, nil
}

const metaMigration = `CREATE TABLE IF NOT EXISTS _meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`

func writeMeta(ctx context.Context, tx *sql.Tx, meta Meta) error {
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO _meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return eris.Wrapf(err, "sqlite: write meta %s", k)
		}
	}
	return nil
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM _meta`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read meta")
	}
	defer rows.Close() //nolint:errcheck

	meta := Meta{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan meta")
		}
		meta[k] = v
	}
	return meta, eris.Wrap(rows.Err(), "sqlite: iterate meta")
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, codec Codec[T], rows []T, prefix ...any) error {
	extra := make([]string, 0, len(prefix))
	if len(prefix) > 0 {
		extra = append(extra, unitColumn)
	}
	stmt, err := tx.PrepareContext(ctx, codec.Table.insertSQL(extra...))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", codec.Table.Name)
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range rows {
		vals, err := codec.Encode(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode %s row %d", codec.Table.Name, i)
		}
		if _, err := stmt.ExecContext(ctx, append(append([]any{}, prefix...), vals...)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", codec.Table.Name, i)
		}
	}
	return nil
}

func scanAll[T any](ctx context.Context, db *sql.DB, codec Codec[T], query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", codec.Table.Name)
	}
	defer rows.Close() //nolint:errcheck

	var out []T
	for rows.Next() {
		v, err := codec.Decode(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode %s", codec.Table.Name)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", codec.Table.Name)
}

// Exists reports whether a non-empty artifact file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
