package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/aqasim81/pgtrack/internal/tracker"
	"github.com/aqasim81/pgtrack/internal/tracklog"
)

var logCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "log <table>",
	Short: "Show the tracked log of a version",
	Long: `Print the structure (DDL) and data (DML) log of a tracking version. Entries
can be narrowed to a time window with --since and --until, which accept most
common date formats. With --sql only the statements are printed, ready to be
replayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	logCmd.Flags().String("db", "", "database name (defaults to the connected database)")
	logCmd.Flags().Int("version", 0, "version to show (defaults to the highest)")
	logCmd.Flags().String("since", "", "only entries written at or after this time")
	logCmd.Flags().String("until", "", "only entries written at or before this time")
	logCmd.Flags().String("kind", "", "only one log: ddl or dml")
	logCmd.Flags().Bool("sql", false, "print statements only")
	rootCmd.AddCommand(logCmd)
}

// logFilter selects the entries runLog prints.
type logFilter struct {
	since, until time.Time
	ddl, dml     bool
	sqlOnly      bool
}

func logFilterFrom(cmd *cobra.Command) (logFilter, error) {
	f := logFilter{ddl: true, dml: true}

	var err error

	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		if f.since, err = dateparse.ParseLocal(raw); err != nil {
			return logFilter{}, fmt.Errorf("invalid --since date %q: %w", raw, err)
		}
	}

	if raw, _ := cmd.Flags().GetString("until"); raw != "" {
		if f.until, err = dateparse.ParseLocal(raw); err != nil {
			return logFilter{}, fmt.Errorf("invalid --until date %q: %w", raw, err)
		}
	}

	switch kind, _ := cmd.Flags().GetString("kind"); strings.ToLower(kind) {
	case "":
	case "ddl":
		f.dml = false
	case "dml":
		f.ddl = false
	default:
		return logFilter{}, fmt.Errorf("invalid --kind %q: want ddl or dml", kind)
	}

	f.sqlOnly, _ = cmd.Flags().GetBool("sql")

	return f, nil
}

func runLog(cmd *cobra.Command, args []string) error {
	filter, err := logFilterFrom(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, table := databaseFlag(cmd, rt), args[0]

	v, _ := cmd.Flags().GetInt("version")
	if v < 1 {
		if v, err = rt.ctrl.GetVersion(ctx, db, table, ""); err != nil {
			return err
		}
	}

	data, err := rt.ctrl.GetTrackedData(ctx, db, table, v)
	if err != nil {
		return err
	}

	if !data.Found {
		warn(out, "%s is not tracked.", tableLabel(db, table))
		return nil
	}

	printTrackedData(out, data, filter)

	return nil
}

func printTrackedData(out io.Writer, data tracker.TrackedData, f logFilter) {
	if !f.sqlOnly {
		heading(out, "%s version %d (%s), %s to %s",
			tableLabel(data.Database, data.Table), data.Version, activeLabel(data.Active),
			data.DateFrom.Format(time.DateTime), data.DateTo.Format(time.DateTime))
	}

	if f.ddl {
		printEntries(out, "Structure", tracklog.Filter(data.SchemaLog, f.since, f.until), f.sqlOnly)
	}

	if f.dml {
		printEntries(out, "Data", tracklog.Filter(data.DataLog, f.since, f.until), f.sqlOnly)
	}
}

func printEntries(out io.Writer, title string, entries []tracklog.Entry, sqlOnly bool) {
	if sqlOnly {
		for _, e := range entries {
			fmt.Fprintln(out, strings.TrimRight(e.Statement, "\n"))
		}

		return
	}

	fmt.Fprintf(out, "\n%s (%d)\n", title, len(entries))

	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %-12s %s\n", e.Date, e.Username, strings.TrimRight(e.Statement, "\n"))
	}
}
