package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status [table]",
	Short: "Show tracking status",
	Long: `Display whether tracking is enabled and configured, where versions are
stored, and, when a table is given, whether its newest version is active.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("db", "", "database name (defaults to the connected database)")
	rootCmd.AddCommand(statusCmd)
}

// trackingStatus is what runStatus reports.
type trackingStatus struct {
	session  string
	database string
	user     string
	location string
	enabled  bool
	active   bool
	table    string
	tracked  bool
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	st := trackingStatus{
		session:  rt.session.ID.String(),
		database: rt.session.CurrentDatabase,
		user:     rt.session.Username,
		location: rt.resolver.Configured().Identifier(),
		enabled:  rt.session.Enabled(),
		active:   rt.ctrl.IsActive(ctx, rt.session),
	}

	if len(args) == 1 {
		db := databaseFlag(cmd, rt)
		st.table = tableLabel(db, args[0])
		st.tracked = rt.ctrl.IsTracked(ctx, rt.session, db, args[0])
	}

	printStatus(out, st)

	return nil
}

func printStatus(out io.Writer, st trackingStatus) {
	heading(out, "Session %s", st.session)
	fmt.Fprintf(out, "  database: %s\n", st.database)
	fmt.Fprintf(out, "  user:     %s\n", st.user)
	fmt.Fprintf(out, "  location: %s\n", st.location)

	switch {
	case st.active:
		success(out, "Tracking is active.")
	case st.enabled:
		warn(out, "Tracking is enabled but the tracking table is missing (run pgtrack init).")
	default:
		warn(out, "Tracking is disabled.")
	}

	if st.table == "" {
		return
	}

	if st.tracked {
		success(out, "%s is tracked.", st.table)
	} else {
		warn(out, "%s is not tracked.", st.table)
	}
}
