package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WriteSnapshot replaces the table file at path with rows. The file is built
// beside path and renamed into place, so readers never see a partial table.
func WriteSnapshot[T any](ctx context.Context, path string, codec Codec[T], rows []T, meta Meta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "store: create dir")
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := writeSnapshotFile(ctx, tmp, codec, rows, meta); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "store: rename snapshot %s", path)
	}
	return nil
}

func writeSnapshotFile[T any](ctx context.Context, path string, codec Codec[T], rows []T, meta Meta) error {
	db, err := openSQLite(path, "DELETE")
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ddl := range []string{metaMigration, codec.Table.createSQL()} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return eris.Wrapf(err, "store: create %s", codec.Table.Name)
		}
	}
	if err := writeMeta(ctx, tx, meta); err != nil {
		return err
	}
	if err := writeMeta(ctx, tx, Meta{"rows": fmt.Sprint(len(rows))}); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, codec, rows); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "store: commit snapshot")
}

// ReadSnapshot loads every row of a snapshot table along with its metadata.
func ReadSnapshot[T any](ctx context.Context, path string, codec Codec[T]) ([]T, Meta, error) {
	if !Exists(path) {
		return nil, nil, eris.Errorf("store: snapshot %s not found", path)
	}
	db, err := openSQLite(path, "DELETE")
	if err != nil {
		return nil, nil, err
	}
	defer db.Close() //nolint:errcheck

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	rows, err := scanAll(ctx, db, codec, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
		codec.Table.columnList(), quoteIdent(codec.Table.Name)))
	if err != nil {
		return nil, nil, err
	}
	return rows, meta, nil
}

// Cached returns the snapshot at path, building and persisting it first when
// it does not exist yet.
func Cached[T any](ctx context.Context, path string, codec Codec[T], meta Meta, build func(context.Context) ([]T, error)) ([]T, error) {
	log := zap.L().With(zap.String("component", "store"), zap.String("path", path))

	if Exists(path) {
		rows, _, err := ReadSnapshot(ctx, path, codec)
		if err == nil {
			log.Debug("loaded cached table", zap.Int("rows", len(rows)))
			return rows, nil
		}
		log.Warn("cached table unreadable, rebuilding", zap.Error(err))
	}

	rows, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteSnapshot(ctx, path, codec, rows, meta); err != nil {
		return nil, err
	}
	log.Info("built table", zap.Int("rows", len(rows)))
	return rows, nil
}
