//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aqasim81/pgtrack/internal/export"
	"github.com/aqasim81/pgtrack/internal/gateway"
	"github.com/aqasim81/pgtrack/internal/metadata"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracker"
)

const (
	postgresImage = "postgres:16-alpine"
	testDB        = "shop"
	testUser      = "alice"
	testPassword  = "alice"
)

// SetupPostgresDSN starts a PostgreSQL 16 container and returns its DSN.
// The container is terminated when the test completes.
func SetupPostgresDSN(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return "postgres://" + testUser + ":" + testPassword + "@" + host + ":" + port.Port() + "/" + testDB + "?sslmode=disable"
}

// SetupPostgres starts a PostgreSQL 16 container and returns a connection pool.
// The container and pool are automatically cleaned up when the test completes.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, SetupPostgresDSN(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
	})

	require.NoError(t, pool.Ping(ctx))

	return pool
}

// Tracking is a tracker wired to a live server the way the CLI wires it.
type Tracking struct {
	Pool     *pgxpool.Pool
	Gateway  *gateway.Gateway
	Resolver *metadata.Resolver
	Ctrl     *tracker.Controller
	Session  *tracker.Session
}

// SetupTracking creates the tracking table in a fresh container and returns
// an enabled session on testDB.
func SetupTracking(t *testing.T, policy tracker.Policy) *Tracking {
	t.Helper()

	ctx := context.Background()
	pool := SetupPostgres(t)
	gw := gateway.New(pool, gateway.WithStatementTimeout(10*time.Second))

	resolver := metadata.NewResolver(gw, metadata.Settings{
		Enabled: true,
		Schema:  metadata.DefaultSchema,
		Table:   metadata.DefaultTable,
	})

	require.NoError(t, store.New(gw, resolver.Configured()).EnsureTable(ctx))
	resolver.Reset()

	ctrl := tracker.New(resolver,
		func(f metadata.Feature) tracker.VersionStore { return store.New(gw, f) },
		export.New(gw),
		tracker.WithPolicy(policy),
	)

	session := tracker.NewSession(testDB, testUser)
	gw.SetHook(ctrl.Hook(session))
	ctrl.Enable(session)

	return &Tracking{Pool: pool, Gateway: gw, Resolver: resolver, Ctrl: ctrl, Session: session}
}

// Exec runs script through the gateway and fails the test on error.
func (tr *Tracking) Exec(t *testing.T, script string) {
	t.Helper()

	_, err := tr.Gateway.ExecScript(context.Background(), script)
	require.NoError(t, err)
}
