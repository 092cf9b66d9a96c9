// Package store persists pipeline artifacts as single-file SQLite tables.
//
// Two shapes are supported. Snapshots are written once, atomically, and read
// back whole (reference codes, geometry layers, graph views). Ledgers grow one
// unit at a time (a year, a state-year) and remember which units completed so
// an interrupted run resumes where it stopped.
package store

import (
	"fmt"
	"strings"
)

// Column is one column of a persisted table.
type Column struct {
	Name string
	Type string // TEXT, INTEGER, REAL or BLOB
}

// Table describes the persisted layout of one record type.
type Table struct {
	Name    string
	Columns []Column
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Codec converts records of type T to and from table rows.
type Codec[T any] struct {
	Table  Table
	Encode func(T) ([]any, error)
	Decode func(Scanner) (T, error)
}

// Meta is free-form table metadata such as the CRS label.
type Meta map[string]string

// MetaCRS is the metadata key holding the coordinate reference label.
const MetaCRS = "crs"

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (t Table) columnList() string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c.Name)
	}
	return strings.Join(names, ", ")
}

func (t Table) createSQL(extra ...Column) string {
	defs := make([]string, 0, len(extra)+len(t.Columns))
	for _, c := range append(extra, t.Columns...) {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
}

func (t Table) insertSQL(extra ...string) string {
	names := make([]string, 0, len(extra)+len(t.Columns))
	for _, e := range extra {
		names = append(names, quoteIdent(e))
	}
	for _, c := range t.Columns {
		names = append(names, quoteIdent(c.Name))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.Name), strings.Join(names, ", "), marks)
}
