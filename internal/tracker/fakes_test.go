package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgtrack/internal/metadata"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracker"
)

var errStorage = errors.New("storage unavailable")

type recordKey struct {
	db      string
	table   string
	version int
}

// memStore is an in-memory VersionStore. Every mutating call is counted in
// writes so tests can assert that nothing was written.
type memStore struct {
	records map[recordKey]*store.Record
	writes  int

	failAppend    error
	failSetActive error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[recordKey]*store.Record)}
}

func (m *memStore) Insert(_ context.Context, r store.Record) error {
	m.writes++

	key := recordKey{r.Database, r.Table, r.Version}
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("duplicate key %v", key)
	}

	r.Statements = store.SplitStatements(store.JoinStatements(r.Statements))
	m.records[key] = &r

	return nil
}

func (m *memStore) SetActive(_ context.Context, db, table string, version int, active bool) error {
	m.writes++

	if m.failSetActive != nil {
		return m.failSetActive
	}

	if r, ok := m.records[recordKey{db, table, version}]; ok {
		r.Active = active
	}

	return nil
}

func (m *memStore) Append(_ context.Context, p store.AppendParams) error {
	m.writes++

	if m.failAppend != nil {
		return m.failAppend
	}

	key := recordKey{p.Database, p.Table, p.Version}

	r, ok := m.records[key]
	if !ok || (p.Identifier != "" && !r.Tracks(p.Identifier)) {
		return nil
	}

	switch p.Column {
	case store.SchemaLog:
		r.SchemaLog += p.Text
	case store.DataLog:
		r.DataLog += p.Text
	default:
		return store.ErrUnknownColumn
	}

	r.UpdatedAt = p.At

	if p.RenameTo != "" {
		delete(m.records, key)
		r.Table = p.RenameTo
		m.records[recordKey{p.Database, p.RenameTo, p.Version}] = r
	}

	return nil
}

func (m *memStore) Delete(_ context.Context, db, table string, version int) error {
	m.writes++

	for key := range m.records {
		if key.db == db && key.table == table && (version <= 0 || key.version == version) {
			delete(m.records, key)
		}
	}

	return nil
}

func (m *memStore) versions(db, table string) []*store.Record {
	var out []*store.Record

	for key, r := range m.records {
		if key.db == db && key.table == table {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	return out
}

func (m *memStore) MaxVersion(_ context.Context, db, table, identifier string) (int, error) {
	highest := -1

	for _, r := range m.versions(db, table) {
		if identifier != "" && !r.Tracks(identifier) {
			continue
		}

		if r.Version > highest {
			highest = r.Version
		}
	}

	return highest, nil
}

func (m *memStore) LatestActive(_ context.Context, db, table string) (bool, error) {
	vs := m.versions(db, table)
	if len(vs) == 0 {
		return false, nil
	}

	return vs[len(vs)-1].Active, nil
}

func (m *memStore) Get(_ context.Context, db, table string, version int) (*store.Record, error) {
	for key, r := range m.records {
		if key.db == db && key.version == version && (table == "" || key.table == table) {
			cp := *r
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("version %d of %s.%s: %w", version, db, table, store.ErrRecordNotFound)
}

func (m *memStore) List(_ context.Context, db, table string) ([]store.Record, error) {
	var out []store.Record

	for _, r := range m.versions(db, table) {
		cp := *r
		cp.SchemaLog, cp.DataLog, cp.SchemaSnapshot = "", "", nil
		out = append(out, cp)
	}

	return out, nil
}

func (m *memStore) DeactivateStale(_ context.Context) (int64, error) {
	m.writes++

	newest := make(map[[2]string]int)

	for key, r := range m.records {
		k := [2]string{key.db, key.table}
		if v, ok := newest[k]; r.Active && (!ok || key.version > v) {
			newest[k] = key.version
		}
	}

	var n int64

	for key, r := range m.records {
		if r.Active && key.version < newest[[2]string{key.db, key.table}] {
			r.Active = false
			n++
		}
	}

	return n, nil
}

// record returns the stored record or fails the test.
func (m *memStore) record(t *testing.T, db, table string, version int) *store.Record {
	t.Helper()

	r, ok := m.records[recordKey{db, table, version}]
	require.True(t, ok, "no record %s.%s version %d", db, table, version)

	return r
}

type fakeResolver struct {
	feature   *metadata.Feature
	err       error
	calls     int
	onResolve func(ctx context.Context)
}

func (r *fakeResolver) Resolve(ctx context.Context) (*metadata.Feature, error) {
	r.calls++

	if r.onResolve != nil {
		r.onResolve(ctx)
	}

	return r.feature, r.err
}

type fakeExporter struct {
	definitions map[string]string
	err         error
}

func (e *fakeExporter) TableDefinition(_ context.Context, _, table string) (string, error) {
	if e.err != nil {
		return "", e.err
	}

	def, ok := e.definitions[table]
	if !ok {
		return "", errors.New("no such relation")
	}

	return def, nil
}

func (e *fakeExporter) Snapshot(_ context.Context, _, table string) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}

	return []byte(`{"table":"` + table + `"}`), nil
}

var fixedNow = time.Date(2024, time.May, 1, 10, 0, 0, 0, time.Local)

const ordersDDL = "CREATE TABLE \"orders\" (\n  \"id\" integer\n);\n"

type fixture struct {
	ctrl     *tracker.Controller
	mem      *memStore
	resolver *fakeResolver
	exporter *fakeExporter
	session  *tracker.Session
}

func newFixture(t *testing.T, policy tracker.Policy) *fixture {
	t.Helper()

	mem := newMemStore()
	resolver := &fakeResolver{feature: &metadata.Feature{Schema: "pgtrack", Table: "tracking"}}
	exporter := &fakeExporter{definitions: map[string]string{"orders": ordersDDL}}

	ctrl := tracker.New(resolver,
		func(metadata.Feature) tracker.VersionStore { return mem },
		exporter,
		tracker.WithPolicy(policy),
		tracker.WithClock(func() time.Time { return fixedNow }),
	)

	s := tracker.NewSession("shop", "alice")
	ctrl.Enable(s)

	return &fixture{ctrl: ctrl, mem: mem, resolver: resolver, exporter: exporter, session: s}
}

func header(user string) string {
	return "# log " + fixedNow.Format("2006-01-02 15:04:05") + " " + user + "\n"
}

// scriptConn is a gateway.Conn whose statements always succeed. Statements
// run inside a transaction are recorded in execs too.
type scriptConn struct {
	execs []string
}

type scriptTx struct {
	pgx.Tx

	conn *scriptConn
}

func (c *scriptConn) Begin(context.Context) (pgx.Tx, error) {
	return &scriptTx{conn: c}, nil
}

func (c *scriptConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (c *scriptConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (c *scriptConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (tx *scriptTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.conn.Exec(ctx, sql, args...)
}

func (tx *scriptTx) Commit(context.Context) error   { return nil }
func (tx *scriptTx) Rollback(context.Context) error { return nil }
