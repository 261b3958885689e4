package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/config"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracker"
	"github.com/aqasim81/pgtrack/internal/tracklog"
)

func TestOpenRuntime_noDatabaseURL_returnsError(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)

	_, err := openRuntime(context.Background(), config.New(), buf)
	require.ErrorIs(t, err, errDatabaseURLRequired)
	assert.Empty(t, buf.String())
}

func TestRunExec_noDatabaseURL_returnsError(t *testing.T) { //nolint:paralleltest // writes global AppConfig
	old := AppConfig
	t.Cleanup(func() { AppConfig = old })

	AppConfig = config.New()

	cmd := &cobra.Command{}
	cmd.Flags().String("sql", "", "")
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, cmd.Flags().Set("sql", "SELECT 1"))

	err := runExec(cmd, nil)
	require.ErrorIs(t, err, errDatabaseURLRequired)
}

func TestPolicyFrom(t *testing.T) {
	t.Parallel()

	t.Run("defaults track every statement", func(t *testing.T) {
		t.Parallel()

		p := policyFrom(config.New())

		assert.False(t, p.AutoCreate)
		assert.True(t, p.AddDropTable)
		assert.True(t, p.AddDropView)
		assert.True(t, p.AddDropDatabase)
		assert.Equal(t, classifier.Identifiers(), p.DefaultStatements)
	})

	t.Run("configured statements are kept", func(t *testing.T) {
		t.Parallel()

		cfg := config.New()
		cfg.Tracking.AutoCreate = true
		cfg.Tracking.AddDropView = false
		cfg.Tracking.DefaultStatements = []string{classifier.Insert, classifier.Update}

		p := policyFrom(cfg)

		assert.True(t, p.AutoCreate)
		assert.False(t, p.AddDropView)
		assert.Equal(t, []string{"INSERT", "UPDATE"}, p.DefaultStatements)
	})
}

func newScriptCommand(in string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("sql", "", "")
	cmd.SetIn(strings.NewReader(in))

	return cmd
}

func TestReadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "script.sql")
	require.NoError(t, os.WriteFile(path, []byte("INSERT INTO orders VALUES (1);"), 0o600))

	t.Run("sql flag wins", func(t *testing.T) {
		t.Parallel()

		cmd := newScriptCommand("")
		require.NoError(t, cmd.Flags().Set("sql", "SELECT 1"))

		got, err := readScript(cmd, []string{path})
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", got)
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()

		got, err := readScript(newScriptCommand(""), []string{path})
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO orders VALUES (1);", got)
	})

	t.Run("stdin", func(t *testing.T) {
		t.Parallel()

		got, err := readScript(newScriptCommand("DELETE FROM orders;"), []string{"-"})
		require.NoError(t, err)
		assert.Equal(t, "DELETE FROM orders;", got)
	})

	t.Run("nothing given", func(t *testing.T) {
		t.Parallel()

		_, err := readScript(newScriptCommand(""), nil)
		require.ErrorIs(t, err, errNoScript)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := readScript(newScriptCommand(""), []string{filepath.Join(dir, "absent.sql")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.sql")
	})
}

func newLogCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{}
	cmd.Flags().String("since", "", "")
	cmd.Flags().String("until", "", "")
	cmd.Flags().String("kind", "", "")
	cmd.Flags().Bool("sql", false, "")

	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}

	return cmd
}

func TestLogFilterFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   map[string]string
		want    logFilter
		wantErr string
	}{
		{
			name:  "defaults show both logs",
			flags: nil,
			want:  logFilter{ddl: true, dml: true},
		},
		{
			name:  "ddl only",
			flags: map[string]string{"kind": "DDL"},
			want:  logFilter{ddl: true},
		},
		{
			name:  "dml only as sql",
			flags: map[string]string{"kind": "dml", "sql": "true"},
			want:  logFilter{dml: true, sqlOnly: true},
		},
		{
			name:  "date window",
			flags: map[string]string{"since": "2024-05-01", "until": "2024-05-02 18:30:00"},
			want: logFilter{
				since: time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local),
				until: time.Date(2024, 5, 2, 18, 30, 0, 0, time.Local),
				ddl:   true,
				dml:   true,
			},
		},
		{
			name:    "bad since",
			flags:   map[string]string{"since": "yesterday-ish"},
			wantErr: "invalid --since date",
		},
		{
			name:    "bad kind",
			flags:   map[string]string{"kind": "dcl"},
			wantErr: "invalid --kind",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := logFilterFrom(newLogCommand(t, tt.flags))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.since.Equal(got.since), "since")
			assert.True(t, tt.want.until.Equal(got.until), "until")
			assert.Equal(t, tt.want.ddl, got.ddl)
			assert.Equal(t, tt.want.dml, got.dml)
			assert.Equal(t, tt.want.sqlOnly, got.sqlOnly)
		})
	}
}

func trackedOrders() tracker.TrackedData {
	at := func(h int) time.Time { return time.Date(2024, 5, 1, h, 0, 0, 0, time.Local) }
	entry := func(h int, user, stmt string) tracklog.Entry {
		return tracklog.Entry{Date: at(h).Format(tracklog.TimeLayout), At: at(h), Username: user, Statement: stmt}
	}

	return tracker.TrackedData{
		Found:    true,
		Database: "shop",
		Table:    "orders",
		Version:  2,
		Active:   true,
		DateFrom: at(9),
		DateTo:   at(12),
		SchemaLog: []tracklog.Entry{
			entry(9, "alice", "CREATE TABLE orders (id int);\n"),
		},
		DataLog: []tracklog.Entry{
			entry(10, "alice", "INSERT INTO orders VALUES (1);\n"),
			entry(12, "bob", "DELETE FROM orders;\n"),
		},
	}
}

func TestPrintTrackedData_full(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	printTrackedData(buf, trackedOrders(), logFilter{ddl: true, dml: true})

	out := buf.String()
	assert.Contains(t, out, "shop.orders version 2 (active)")
	assert.Contains(t, out, "Structure (1)")
	assert.Contains(t, out, "Data (2)")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "DELETE FROM orders;")
}

func TestPrintTrackedData_sqlOnlyWithinWindow(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	printTrackedData(buf, trackedOrders(), logFilter{
		dml:     true,
		sqlOnly: true,
		until:   time.Date(2024, 5, 1, 11, 0, 0, 0, time.Local),
	})

	assert.Equal(t, "INSERT INTO orders VALUES (1);\n", buf.String())
}

func TestPrintVersions(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	buf := new(bytes.Buffer)

	err := printVersions(buf, []store.Record{
		{Version: 1, Active: false, CreatedAt: created, UpdatedAt: created, Statements: []string{"INSERT"}},
		{Version: 2, Active: true, CreatedAt: created, UpdatedAt: created.Add(time.Hour), Statements: []string{"INSERT", "UPDATE"}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "VERSION")
	assert.Contains(t, lines[1], "inactive")
	assert.Contains(t, lines[2], "2024-05-01 11:00:00")
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		st   trackingStatus
		want []string
	}{
		{
			name: "active with tracked table",
			st:   trackingStatus{enabled: true, active: true, table: "shop.orders", tracked: true},
			want: []string{"Tracking is active.", "shop.orders is tracked."},
		},
		{
			name: "enabled without table",
			st:   trackingStatus{enabled: true, location: `"pgtrack"."tracking"`},
			want: []string{"pgtrack init", `"pgtrack"."tracking"`},
		},
		{
			name: "disabled",
			st:   trackingStatus{table: "shop.orders"},
			want: []string{"Tracking is disabled.", "shop.orders is not tracked."},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := new(bytes.Buffer)
			printStatus(buf, tt.st)

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestTableLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "shop.orders", tableLabel("shop", "orders"))
	assert.Equal(t, "shop", tableLabel("shop", ""))
}

func TestReportChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ok      bool
		want    string
		notWant string
	}{
		{name: "applied", ok: true, want: "Version 2 of shop.orders is now inactive.", notWant: "not configured"},
		{name: "tracking not configured", ok: false, want: "Tracking is not configured", notWant: "is now inactive"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := new(bytes.Buffer)
			reportChange(buf, tt.ok, "Version %d of %s is now %s.", 2, tableLabel("shop", "orders"), activeLabel(false))

			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), tt.notWant)
		})
	}
}
