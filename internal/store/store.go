// Package store persists tracking records in a PostgreSQL table. One row
// exists per (database, table, version); its two log columns only ever grow.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aqasim81/pgtrack/internal/metadata"
)

// Column names one of the two append-only log columns.
type Column string

// Log columns.
const (
	SchemaLog Column = "schema_sql"
	DataLog   Column = "data_sql"
)

func (c Column) valid() bool {
	return c == SchemaLog || c == DataLog
}

// Record is one tracking version of a table or database.
type Record struct {
	Database       string
	Table          string
	Version        int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SchemaSnapshot []byte
	SchemaLog      string
	DataLog        string
	Statements     []string
}

// Tracks reports whether the record's statement set contains identifier.
func (r *Record) Tracks(identifier string) bool {
	for _, s := range r.Statements {
		if s == identifier {
			return true
		}
	}

	return false
}

// AppendParams describes one append to a log column.
type AppendParams struct {
	Database string
	Table    string
	Version  int
	Column   Column
	Text     string
	At       time.Time
	// Identifier, when set, restricts the append to a record that tracks it.
	Identifier string
	// RenameTo, when set, also moves the record to a new table name.
	RenameTo string
}

// Querier is satisfied by *pgxpool.Pool and by the execution gateway.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages the tracking table named by a metadata.Feature.
type Store struct {
	q       Querier
	feature metadata.Feature
	tbl     string
}

// New creates a Store for the tracking table f reached through q.
func New(q Querier, f metadata.Feature) *Store {
	return &Store{q: q, feature: f, tbl: f.Identifier()}
}

// EnsureTable creates the tracking schema and table if they do not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	for _, ddl := range createSchemaSQL(pgx.Identifier{s.feature.Schema}.Sanitize(), s.tbl) {
		if _, err := s.q.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("%w: %w", ErrTableCreation, err)
		}
	}

	return nil
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, r Record) error {
	_, err := s.q.Exec(ctx,
		NoTrack+"\n"+`INSERT INTO `+s.tbl+` (db_name, table_name, version, date_created, date_updated,
		     schema_snapshot, schema_sql, data_sql, tracking, tracking_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.Database, r.Table, r.Version, r.CreatedAt, r.UpdatedAt,
		string(r.SchemaSnapshot), r.SchemaLog, r.DataLog, JoinStatements(r.Statements), boolInt(r.Active),
	)
	if err != nil {
		return fmt.Errorf("inserting version %d of %s.%s: %w", r.Version, r.Database, r.Table, err)
	}

	return nil
}

// SetActive flips the active flag of exactly one version. A missing version
// is not an error.
func (s *Store) SetActive(ctx context.Context, db, table string, version int, active bool) error {
	_, err := s.q.Exec(ctx,
		NoTrack+"\n"+`UPDATE `+s.tbl+` SET tracking_active = $1
		 WHERE db_name = $2 AND table_name = $3 AND version = $4`,
		boolInt(active), db, table, version,
	)
	if err != nil {
		return fmt.Errorf("setting tracking_active of %s.%s version %d: %w", db, table, version, err)
	}

	return nil
}

// Append concatenates p.Text to a log column.
func (s *Store) Append(ctx context.Context, p AppendParams) error {
	sql, args, err := appendSQL(s.tbl, p)
	if err != nil {
		return err
	}

	if _, err := s.q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("appending to %s of %s.%s version %d: %w", p.Column, p.Database, p.Table, p.Version, err)
	}

	return nil
}

// appendSQL builds the single UPDATE that appends to a log column. The
// column name comes from a closed set; everything else is a parameter.
func appendSQL(tbl string, p AppendParams) (string, []any, error) {
	if !p.Column.valid() {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, p.Column)
	}

	col := pgx.Identifier{string(p.Column)}.Sanitize()
	args := []any{p.Text, p.At}

	var b strings.Builder

	fmt.Fprintf(&b, "%s\nUPDATE %s SET %s = %s || $1, date_updated = $2", NoTrack, tbl, col, col)

	if p.RenameTo != "" {
		args = append(args, p.RenameTo)
		fmt.Fprintf(&b, ", table_name = $%d", len(args))
	}

	args = append(args, p.Database, p.Table, p.Version)
	fmt.Fprintf(&b, " WHERE db_name = $%d AND table_name = $%d AND version = $%d", len(args)-2, len(args)-1, len(args))

	if p.Identifier != "" {
		args = append(args, p.Identifier)
		fmt.Fprintf(&b, " AND $%d = ANY(string_to_array(tracking, ','))", len(args))
	}

	return b.String(), args, nil
}

// Delete removes every version of a table, or only version when it is > 0.
func (s *Store) Delete(ctx context.Context, db, table string, version int) error {
	sql := NoTrack + "\n" + `DELETE FROM ` + s.tbl + ` WHERE db_name = $1 AND table_name = $2`
	args := []any{db, table}

	if version > 0 {
		sql += ` AND version = $3`
		args = append(args, version)
	}

	if _, err := s.q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("deleting tracking of %s.%s: %w", db, table, err)
	}

	return nil
}

// MaxVersion returns the highest version of a table, restricted to versions
// tracking identifier when it is non-empty. It returns -1 when none match.
func (s *Store) MaxVersion(ctx context.Context, db, table, identifier string) (int, error) {
	sql := NoTrack + "\n" + `SELECT COALESCE(MAX(version), -1) FROM ` + s.tbl + ` WHERE db_name = $1 AND table_name = $2`
	args := []any{db, table}

	if identifier != "" {
		sql += ` AND $3 = ANY(string_to_array(tracking, ','))`
		args = append(args, identifier)
	}

	var version int
	if err := s.q.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		return -1, fmt.Errorf("getting version of %s.%s: %w", db, table, err)
	}

	return version, nil
}

// LatestActive reports the active flag of the highest version of a table.
func (s *Store) LatestActive(ctx context.Context, db, table string) (bool, error) {
	var active int

	err := s.q.QueryRow(ctx,
		NoTrack+"\n"+`SELECT tracking_active FROM `+s.tbl+`
		 WHERE db_name = $1 AND table_name = $2
		 ORDER BY version DESC LIMIT 1`,
		db, table,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("checking tracking status of %s.%s: %w", db, table, err)
	}

	return active == 1, nil
}

// Get returns one record. An empty table matches any table of the database.
func (s *Store) Get(ctx context.Context, db, table string, version int) (*Record, error) {
	sql := NoTrack + "\n" + `SELECT db_name, table_name, version, date_created, date_updated,
		     schema_snapshot, schema_sql, data_sql, tracking, tracking_active
		 FROM ` + s.tbl + ` WHERE db_name = $1 AND version = $2`
	args := []any{db, version}

	if table != "" {
		sql += ` AND table_name = $3`
		args = append(args, table)
	}

	sql += ` ORDER BY version DESC LIMIT 1`

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying version %d of %s.%s: %w", version, db, table, err)
	}

	r, err := pgx.CollectOneRow(rows, scanFull)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("version %d of %s.%s: %w", version, db, table, ErrRecordNotFound)
		}

		return nil, fmt.Errorf("scanning version %d of %s.%s: %w", version, db, table, err)
	}

	return &r, nil
}

// List returns every version of a table ordered by version, without log
// bodies or snapshots.
func (s *Store) List(ctx context.Context, db, table string) ([]Record, error) {
	rows, err := s.q.Query(ctx,
		NoTrack+"\n"+`SELECT db_name, table_name, version, date_created, date_updated, tracking, tracking_active
		 FROM `+s.tbl+`
		 WHERE db_name = $1 AND table_name = $2
		 ORDER BY version`,
		db, table,
	)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s.%s: %w", db, table, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			r        Record
			tracking string
			active   int
		)

		if scanErr := row.Scan(&r.Database, &r.Table, &r.Version, &r.CreatedAt, &r.UpdatedAt, &tracking, &active); scanErr != nil {
			return Record{}, fmt.Errorf("scanning tracking row: %w", scanErr)
		}

		r.Statements = SplitStatements(tracking)
		r.Active = active == 1

		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning versions of %s.%s: %w", db, table, err)
	}

	return records, nil
}

// DeactivateStale leaves only the newest active version active for every
// table that has more than one, and returns the number of rows changed.
func (s *Store) DeactivateStale(ctx context.Context) (int64, error) {
	tag, err := s.q.Exec(ctx,
		NoTrack+"\n"+`UPDATE `+s.tbl+` AS t SET tracking_active = 0
		 FROM (
		     SELECT db_name, table_name, MAX(version) AS version
		     FROM `+s.tbl+`
		     WHERE tracking_active = 1
		     GROUP BY db_name, table_name
		     HAVING COUNT(*) > 1
		 ) AS newest
		 WHERE t.db_name = newest.db_name
		   AND t.table_name = newest.table_name
		   AND t.version < newest.version
		   AND t.tracking_active = 1`,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivating stale versions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanFull(row pgx.CollectableRow) (Record, error) {
	var (
		r        Record
		snapshot string
		tracking string
		active   int
	)

	if err := row.Scan(&r.Database, &r.Table, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		&snapshot, &r.SchemaLog, &r.DataLog, &tracking, &active); err != nil {
		return Record{}, fmt.Errorf("scanning tracking row: %w", err)
	}

	r.SchemaSnapshot = []byte(snapshot)
	r.Statements = SplitStatements(tracking)
	r.Active = active == 1

	return r, nil
}

// JoinStatements renders a statement set the way it is stored.
func JoinStatements(statements []string) string {
	return strings.Join(cleanStatements(statements), ",")
}

// SplitStatements parses a stored statement set.
func SplitStatements(s string) []string {
	return cleanStatements(strings.Split(s, ","))
}

func cleanStatements(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))

	for _, s := range in {
		s = strings.Join(strings.Fields(strings.ToUpper(s)), " ")
		if s == "" || seen[s] {
			continue
		}

		seen[s] = true
		out = append(out, s)
	}

	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
