package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aqasim81/pgtrack/internal/database"
)

var repairCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "repair",
	Short: "Deactivate all but the newest version of every table",
	Long: `Creating a version and deactivating its predecessor are two writes. When a
crash lands between them, more than one version stays active. repair
deactivates every version that is not the highest of its table. Concurrent
runs are serialized with an advisory lock.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd.Context())
	out := cmd.OutOrStdout()

	rt, err := openRuntime(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer rt.Close()

	lock, err := database.TryAcquireLock(ctx, rt.controlPool, database.RepairLockID)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			slog.Warn("releasing repair lock", "error", releaseErr)
		}
	}()

	n, err := rt.ctrl.Repair(ctx)
	if err != nil {
		return fmt.Errorf("repairing tracking table: %w", err)
	}

	if n == 0 {
		success(out, "Nothing to repair.")
		return nil
	}

	success(out, "Deactivated %d stale version(s).", n)

	return nil
}
