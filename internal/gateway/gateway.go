// Package gateway executes SQL against the monitored server and reports every
// successful statement to a hook. The tracker installs itself as that hook.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aqasim81/pgtrack/internal/parser"
)

// Hook is called with the text of every statement that executed successfully.
type Hook func(ctx context.Context, sql string)

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Conn is the connection the gateway runs statements on. *pgxpool.Pool
// satisfies it.
type Conn interface {
	Beginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway runs statements on a Conn and reports them to its hook.
type Gateway struct {
	conn             Conn
	hook             Hook
	statementTimeout time.Duration
	logger           *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHook sets the function called after each successful statement.
func WithHook(h Hook) Option {
	return func(g *Gateway) { g.hook = h }
}

// WithStatementTimeout limits how long a single statement may run.
func WithStatementTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.statementTimeout = d }
}

// WithLogger sets the logger used for statement tracing.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway over conn.
func New(conn Conn, opts ...Option) *Gateway {
	g := &Gateway{conn: conn}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}

	return g
}

// SetHook replaces the hook. It lets the tracker be wired after the gateway
// it depends on has been built.
func (g *Gateway) SetHook(h Hook) {
	g.hook = h
}

// Exec runs one statement and reports it on success.
func (g *Gateway) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := g.exec(ctx, sql, args...)
	if err != nil {
		return tag, err
	}

	g.report(ctx, sql)

	return tag, nil
}

func (g *Gateway) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	execCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()

	tag, err := g.conn.Exec(execCtx, sql, args...)
	if err != nil {
		return tag, err
	}

	g.logger.Debug("statement executed", "tag", tag.String(), "duration", time.Since(start))

	return tag, nil
}

// Query runs a query and reports it once the server accepted it.
func (g *Gateway) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := g.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	g.report(ctx, sql)

	return rows, nil
}

// QueryRow runs a single-row query. Errors are deferred to Scan, so the
// statement is always reported.
func (g *Gateway) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := g.conn.QueryRow(ctx, sql, args...)
	g.report(ctx, sql)

	return row
}

// ExecScript runs every statement of script in order and returns how many
// succeeded. The server receives the PostgreSQL form of each statement; the
// hook receives the text as written. A leading USE is reported to the hook
// without being sent to the server.
func (g *Gateway) ExecScript(ctx context.Context, script string) (int, error) {
	res, err := parser.Parse(script)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScriptFailed, err)
	}

	if res.UseDatabase != "" {
		g.report(ctx, "USE "+pgx.Identifier{res.UseDatabase}.Sanitize())
	}

	statements := res.Statements()

	if requiresAutocommit(res) {
		for i, stmt := range statements {
			if _, err := g.exec(ctx, stmt.Exec); err != nil {
				return i, fmt.Errorf("%w: statement %d: %w", ErrScriptFailed, i+1, err)
			}

			g.report(ctx, stmt.Text)
		}

		return len(statements), nil
	}

	err = inTransaction(ctx, g.conn, func(tx pgx.Tx) error {
		if g.statementTimeout > 0 {
			if err := setLocalStatementTimeout(ctx, tx, g.statementTimeout); err != nil {
				return err
			}
		}

		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt.Exec); err != nil {
				return fmt.Errorf("%w: statement %d: %w", ErrScriptFailed, i+1, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, stmt := range statements {
		g.report(ctx, stmt.Text)
	}

	return len(statements), nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.statementTimeout > 0 {
		return context.WithTimeout(ctx, g.statementTimeout)
	}

	return ctx, func() {}
}

func (g *Gateway) report(ctx context.Context, sql string) {
	if g.hook != nil {
		g.hook(ctx, sql)
	}
}
