package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/aqasim81/pgtrack/internal/config"
	"github.com/aqasim81/pgtrack/internal/store"
)

var versionCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "version",
	Short: "Manage tracking versions",
	Long: `Create, list, activate, deactivate and delete tracking versions of tables,
views and databases.`,
}

var versionCreateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "create <table>",
	Short: "Start a new tracking version of a table or view",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionCreate,
}

var versionCreateDBCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "create-db",
	Short: "Start a new tracking version of a database",
	Args:  cobra.NoArgs,
	RunE:  runVersionCreateDB,
}

var versionListCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "list <table>",
	Short: "List tracking versions of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionList,
}

var versionActivateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "activate <table> <version>",
	Short: "Resume tracking of a version",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetActive(cmd, args, true) },
}

var versionDeactivateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "deactivate <table> <version>",
	Short: "Pause tracking of a version",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSetActive(cmd, args, false) },
}

var versionDeleteCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "delete <table>",
	Short: "Delete one or every tracking version of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionDelete,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	versionCmd.PersistentFlags().String("db", "", "database name (defaults to the connected database)")

	versionCreateCmd.Flags().Int("version", 0, "version number (defaults to the highest existing version + 1)")
	versionCreateCmd.Flags().Bool("view", false, "the relation is a view")
	versionCreateCmd.Flags().String("statements", "", "comma-separated statement identifiers to track")

	versionCreateDBCmd.Flags().Int("version", 0, "version number (defaults to the highest existing version + 1)")
	versionCreateDBCmd.Flags().String("query", "", "statement to seed the schema log with")
	versionCreateDBCmd.Flags().String("statements", "", "comma-separated statement identifiers to track")

	versionDeleteCmd.Flags().Int("version", 0, "version to delete (0 deletes every version)")

	versionCmd.AddCommand(versionCreateCmd, versionCreateDBCmd, versionListCmd,
		versionActivateCmd, versionDeactivateCmd, versionDeleteCmd)
	rootCmd.AddCommand(versionCmd)
}

// databaseFlag returns --db, falling back to the session database.
func databaseFlag(cmd *cobra.Command, rt *runtime) string {
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		return db
	}

	return rt.session.CurrentDatabase
}

// nextVersion returns --version when set, else one past the highest
// existing version (1 when there is none).
func nextVersion(cmd *cobra.Command, rt *runtime, db, table string) (int, error) {
	if cmd.Flags().Changed("version") {
		v, _ := cmd.Flags().GetInt("version")
		if v < 1 {
			return 0, fmt.Errorf("invalid --version %d: must be at least 1", v)
		}

		return v, nil
	}

	current, err := rt.ctrl.GetVersion(commandContext(cmd.Context()), db, table, "")
	if err != nil {
		return 0, err
	}

	if current < 1 {
		return 1, nil
	}

	return current + 1, nil
}

func runVersionCreate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, table := databaseFlag(cmd, rt), args[0]

	v, err := nextVersion(cmd, rt, db, table)
	if err != nil {
		return err
	}

	isView, _ := cmd.Flags().GetBool("view")
	raw, _ := cmd.Flags().GetString("statements")

	ok, err := rt.ctrl.CreateVersion(ctx, rt.session, db, table, v, config.SplitList(raw), isView)
	if err != nil {
		return fmt.Errorf("creating version %d of %s: %w", v, tableLabel(db, table), err)
	}

	if !ok {
		warn(out, "Tracking is not configured; no version was created.")
		return nil
	}

	success(out, "Version %d of %s created.", v, tableLabel(db, table))

	return nil
}

func runVersionCreateDB(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db := databaseFlag(cmd, rt)

	v, err := nextVersion(cmd, rt, db, "")
	if err != nil {
		return err
	}

	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = "CREATE DATABASE " + pgx.Identifier{db}.Sanitize() + ";\n"
	}

	raw, _ := cmd.Flags().GetString("statements")

	ok, err := rt.ctrl.CreateDatabaseVersion(ctx, rt.session, db, v, query, config.SplitList(raw))
	if err != nil {
		return fmt.Errorf("creating version %d of database %s: %w", v, db, err)
	}

	if !ok {
		warn(out, "Tracking is not configured; no version was created.")
		return nil
	}

	success(out, "Version %d of database %s created.", v, db)

	return nil
}

func runVersionList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, table := databaseFlag(cmd, rt), args[0]

	records, err := rt.ctrl.ListVersions(ctx, db, table)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		warn(out, "%s is not tracked.", tableLabel(db, table))
		return nil
	}

	heading(out, "Versions of %s", tableLabel(db, table))

	return printVersions(out, records)
}

func printVersions(out io.Writer, records []store.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "VERSION\tSTATUS\tCREATED\tUPDATED\tSTATEMENTS")

	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
			r.Version,
			activeLabel(r.Active),
			r.CreatedAt.Format(time.DateTime),
			r.UpdatedAt.Format(time.DateTime),
			len(r.Statements),
		)
	}

	return w.Flush()
}

func runSetActive(cmd *cobra.Command, args []string, active bool) error {
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 1 {
		return fmt.Errorf("invalid version %q", args[1])
	}

	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, table := databaseFlag(cmd, rt), args[0]

	var ok bool

	if active {
		ok, err = rt.ctrl.ActivateTracking(ctx, db, table, v)
	} else {
		ok, err = rt.ctrl.DeactivateTracking(ctx, db, table, v)
	}

	if err != nil {
		return fmt.Errorf("updating version %d of %s: %w", v, tableLabel(db, table), err)
	}

	reportChange(out, ok, "Version %d of %s is now %s.", v, tableLabel(db, table), activeLabel(active))

	return nil
}

func runVersionDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, table := databaseFlag(cmd, rt), args[0]
	v, _ := cmd.Flags().GetInt("version")

	ok, err := rt.ctrl.DeleteTracking(ctx, db, table, v)
	if err != nil {
		return fmt.Errorf("deleting tracking of %s: %w", tableLabel(db, table), err)
	}

	if v > 0 {
		reportChange(out, ok, "Version %d of %s deleted.", v, tableLabel(db, table))
	} else {
		reportChange(out, ok, "All versions of %s deleted.", tableLabel(db, table))
	}

	return nil
}
