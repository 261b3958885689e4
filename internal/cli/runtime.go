package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/config"
	"github.com/aqasim81/pgtrack/internal/database"
	"github.com/aqasim81/pgtrack/internal/export"
	"github.com/aqasim81/pgtrack/internal/gateway"
	"github.com/aqasim81/pgtrack/internal/metadata"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracker"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"database URL is required (set --database-url, PGTRACK_DATABASE_URL, or database_url in config)",
)

// runtime is everything a command needs to execute and track statements.
type runtime struct {
	pool        *pgxpool.Pool
	controlPool *pgxpool.Pool

	// gateway runs statements on the monitored server, control on the
	// server holding the tracking table. They are the same value when both
	// URLs match.
	gateway *gateway.Gateway
	control *gateway.Gateway

	resolver *metadata.Resolver
	ctrl     *tracker.Controller
	session  *tracker.Session
}

// openRuntime connects to the configured servers and wires the tracker as
// the hook of every gateway. Tracking is enabled last, once all of its
// collaborators exist.
func openRuntime(ctx context.Context, cfg *config.Config, out io.Writer) (*runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errDatabaseURLRequired
	}

	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	rt := &runtime{pool: pool, controlPool: pool}
	logger := slog.Default()

	rt.gateway = gateway.New(pool,
		gateway.WithStatementTimeout(cfg.StatementTimeout),
		gateway.WithLogger(logger.With("server", "monitored")),
	)
	rt.control = rt.gateway

	if cfg.ControlURL() != cfg.DatabaseURL {
		rt.controlPool, err = database.NewPool(ctx, cfg.ControlURL())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to control database: %w", err)
		}

		rt.control = gateway.New(rt.controlPool,
			gateway.WithStatementTimeout(cfg.StatementTimeout),
			gateway.WithLogger(logger.With("server", "control")),
		)
	}

	rt.resolver = metadata.NewResolver(rt.control, metadata.Settings{
		Enabled: cfg.Tracking.Enabled,
		Schema:  cfg.Tracking.Schema,
		Table:   cfg.Tracking.Table,
	})

	control := rt.control
	rt.ctrl = tracker.New(rt.resolver,
		func(f metadata.Feature) tracker.VersionStore { return store.New(control, f) },
		export.New(rt.gateway),
		tracker.WithPolicy(policyFrom(cfg)),
		tracker.WithLogger(logger),
	)

	target := database.TargetOf(pool)

	user := cfg.Username
	if user == "" {
		user = target.User
	}

	rt.session = tracker.NewSession(target.Database, user)

	hook := rt.ctrl.Hook(rt.session)
	rt.gateway.SetHook(hook)
	rt.control.SetHook(hook)

	if cfg.Tracking.Enabled {
		rt.ctrl.Enable(rt.session)
	}

	logger.Debug("runtime ready", "session", rt.session.ID, "db", target.Database, "user", user)

	return rt, nil
}

// Close releases both pools.
func (rt *runtime) Close() {
	if rt.controlPool != rt.pool {
		rt.controlPool.Close()
	}

	rt.pool.Close()
}

// trackingStore returns the store of the configured tracking location,
// whether or not its table exists yet.
func (rt *runtime) trackingStore() *store.Store {
	return store.New(rt.control, rt.resolver.Configured())
}

func policyFrom(cfg *config.Config) tracker.Policy {
	statements := cfg.Tracking.DefaultStatements
	if len(statements) == 0 {
		statements = classifier.Identifiers()
	}

	return tracker.Policy{
		AutoCreate:        cfg.Tracking.AutoCreate,
		AddDropTable:      cfg.Tracking.AddDropTable,
		AddDropView:       cfg.Tracking.AddDropView,
		AddDropDatabase:   cfg.Tracking.AddDropDatabase,
		DefaultStatements: statements,
	}
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}
