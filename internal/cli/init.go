package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "init",
	Short: "Create the tracking table",
	Long: `Create the schema and table that hold tracking versions on the control
server. Running it again is harmless.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.trackingStore().EnsureTable(ctx); err != nil {
		return fmt.Errorf("initializing tracking table: %w", err)
	}

	rt.resolver.Reset()

	success(out, "Tracking table %s is ready.", rt.resolver.Configured().Identifier())

	if !AppConfig.Tracking.Enabled {
		warn(out, "Tracking is disabled in configuration; statements will not be recorded.")
	}

	return nil
}
