package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)  //nolint:gochecknoglobals // shared palette
	warnColor = color.New(color.FgYellow) //nolint:gochecknoglobals // shared palette
	headColor = color.New(color.FgCyan)   //nolint:gochecknoglobals // shared palette
)

func success(out io.Writer, format string, args ...any) {
	okColor.Fprintf(out, format+"\n", args...) //nolint:errcheck // terminal output
}

func warn(out io.Writer, format string, args ...any) {
	warnColor.Fprintf(out, format+"\n", args...) //nolint:errcheck // terminal output
}

// reportChange prints the success message when the controller applied the
// change; ok is false when no tracking table is configured.
func reportChange(out io.Writer, ok bool, format string, args ...any) {
	if !ok {
		warn(out, "Tracking is not configured; nothing was changed.")
		return
	}

	success(out, format, args...)
}

func heading(out io.Writer, format string, args ...any) {
	headColor.Fprintf(out, format+"\n", args...) //nolint:errcheck // terminal output
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}

	return "inactive"
}

// tableLabel renders a tracked name; database versions have no table.
func tableLabel(db, table string) string {
	if table == "" {
		return db
	}

	return fmt.Sprintf("%s.%s", db, table)
}
