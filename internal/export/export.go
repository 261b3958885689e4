// Package export reads table and view definitions from the PostgreSQL
// catalogs. The tracker seeds every new version with this definition and a
// snapshot of the table's columns and indexes.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrNoDefinition indicates the relation does not exist in the connected
// database, or is neither a table nor a view.
var ErrNoDefinition = errors.New("no definition available")

// Column is one column of a table snapshot.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	NotNull  bool   `json:"not_null"`
	Default  string `json:"default,omitempty"`
	Position int    `json:"position"`
}

// Index is one index of a table snapshot.
type Index struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// Snapshot is the structure captured when a version is created.
type Snapshot struct {
	Columns []Column `json:"columns"`
	Indexes []Index  `json:"indexes"`
}

// Querier is the read side of a pgx connection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exporter reads definitions over q. Relations are looked up in the current
// schema of the connection, which must be connected to the named database.
type Exporter struct {
	q Querier
}

// New creates an Exporter.
func New(q Querier) *Exporter {
	return &Exporter{q: q}
}

const relationSQL = `SELECT c.relkind::text, CASE WHEN c.relkind IN ('v', 'm') THEN pg_get_viewdef(c.oid, true) ELSE '' END
 FROM pg_class c
 JOIN pg_namespace n ON n.oid = c.relnamespace
 WHERE current_database() = $1 AND n.nspname = current_schema() AND c.relname = $2`

const columnsSQL = `SELECT a.attname, format_type(a.atttypid, a.atttypmod), a.attnotnull,
     COALESCE(pg_get_expr(d.adbin, d.adrelid), ''), a.attnum
 FROM pg_attribute a
 JOIN pg_class c ON c.oid = a.attrelid
 JOIN pg_namespace n ON n.oid = c.relnamespace
 LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
 WHERE current_database() = $1 AND n.nspname = current_schema() AND c.relname = $2
   AND a.attnum > 0 AND NOT a.attisdropped
 ORDER BY a.attnum`

const indexesSQL = `SELECT indexname, indexdef FROM pg_indexes
 WHERE current_database() = $1 AND schemaname = current_schema() AND tablename = $2
 ORDER BY indexname`

// TableDefinition returns the CREATE statement(s) recreating a table or view.
func (e *Exporter) TableDefinition(ctx context.Context, db, table string) (string, error) {
	var kind, viewDef string

	err := e.q.QueryRow(ctx, relationSQL, db, table).Scan(&kind, &viewDef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%s.%s: %w", db, table, ErrNoDefinition)
		}

		return "", fmt.Errorf("looking up %s.%s: %w", db, table, err)
	}

	switch kind {
	case "v":
		return RenderView(table, viewDef, false), nil
	case "m":
		return RenderView(table, viewDef, true), nil
	case "r", "p":
	default:
		return "", fmt.Errorf("%s.%s has relkind %q: %w", db, table, kind, ErrNoDefinition)
	}

	snap, err := e.snapshot(ctx, db, table)
	if err != nil {
		return "", err
	}

	return RenderTable(table, snap), nil
}

// Snapshot returns the JSON-encoded columns and indexes of a relation.
func (e *Exporter) Snapshot(ctx context.Context, db, table string) ([]byte, error) {
	snap, err := e.snapshot(ctx, db, table)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot of %s.%s: %w", db, table, err)
	}

	return data, nil
}

func (e *Exporter) snapshot(ctx context.Context, db, table string) (*Snapshot, error) {
	rows, err := e.q.Query(ctx, columnsSQL, db, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s.%s: %w", db, table, err)
	}

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		if scanErr := row.Scan(&c.Name, &c.Type, &c.NotNull, &c.Default, &c.Position); scanErr != nil {
			return Column{}, fmt.Errorf("scanning column row: %w", scanErr)
		}

		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning columns of %s.%s: %w", db, table, err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", db, table, ErrNoDefinition)
	}

	rows, err = e.q.Query(ctx, indexesSQL, db, table)
	if err != nil {
		return nil, fmt.Errorf("querying indexes of %s.%s: %w", db, table, err)
	}

	indexes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Index, error) {
		var i Index
		if scanErr := row.Scan(&i.Name, &i.Definition); scanErr != nil {
			return Index{}, fmt.Errorf("scanning index row: %w", scanErr)
		}

		return i, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning indexes of %s.%s: %w", db, table, err)
	}

	return &Snapshot{Columns: columns, Indexes: indexes}, nil
}

// RenderTable renders a CREATE TABLE for snap followed by its indexes.
func RenderTable(table string, snap *Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", pgx.Identifier{table}.Sanitize())

	for i, c := range snap.Columns {
		fmt.Fprintf(&b, "  %s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)

		if c.NotNull {
			b.WriteString(" NOT NULL")
		}

		if c.Default != "" {
			b.WriteString(" DEFAULT " + c.Default)
		}

		if i < len(snap.Columns)-1 {
			b.WriteString(",")
		}

		b.WriteString("\n")
	}

	b.WriteString(");\n")

	for _, idx := range snap.Indexes {
		b.WriteString(idx.Definition + ";\n")
	}

	return b.String()
}

// RenderView renders a CREATE VIEW (or MATERIALIZED VIEW) from its body.
func RenderView(view, body string, materialized bool) string {
	kind := "VIEW"
	if materialized {
		kind = "MATERIALIZED VIEW"
	}

	body = strings.TrimSuffix(strings.TrimSpace(body), ";")

	return fmt.Sprintf("CREATE %s %s AS\n%s;\n", kind, pgx.Identifier{view}.Sanitize(), body)
}
