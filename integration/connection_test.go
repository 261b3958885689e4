//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgtrack/internal/database"
)

func TestNewPool_validConnection_succeeds(t *testing.T) {
	t.Parallel()

	dsn := SetupPostgresDSN(t)
	ctx := context.Background()

	pool, err := database.NewPool(ctx, dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
	})

	var appName string

	err = pool.QueryRow(ctx, "SELECT current_setting('application_name')").Scan(&appName)
	require.NoError(t, err)
	assert.Equal(t, "pgtrack", appName)

	target := database.TargetOf(pool)
	assert.Equal(t, testDB, target.Database)
	assert.Equal(t, testUser, target.User)
}

func TestNewPool_invalidURL_returnsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := database.NewPool(ctx, "not-valid")

	require.ErrorIs(t, err, database.ErrInvalidDatabaseURL)
}
