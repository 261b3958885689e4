package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var errNoScript = errors.New("no SQL given (pass a file, - for stdin, or --sql)") //nolint:gochecknoglobals // sentinel error

var execCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "exec [file|-]",
	Short: "Execute SQL and record tracked statements",
	Long: `Execute a SQL script against the monitored server. Every statement that
touches a tracked table is appended to the log of its active version once the
script succeeds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExec,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	execCmd.Flags().String("sql", "", "SQL to execute instead of a file")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	script, err := readScript(cmd, args)
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

	n, err := rt.gateway.ExecScript(ctx, script)
	if err != nil {
		return err
	}

	success(out, "Executed %d statement(s).", n)

	return nil
}

// readScript returns --sql when set, else the named file, with "-" reading
// standard input.
func readScript(cmd *cobra.Command, args []string) (string, error) {
	if sql, _ := cmd.Flags().GetString("sql"); sql != "" {
		return sql, nil
	}

	if len(args) == 0 {
		return "", errNoScript
	}

	if args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}

		return string(b), nil
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}

	return string(b), nil
}
