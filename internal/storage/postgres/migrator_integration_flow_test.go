package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireMigrationStatus(t *testing.T, store *Store, wantVersion int64, wantCount int) {
	t.Helper()

	version, count, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantVersion, version, "schema version")
	assert.Equal(t, wantCount, count, "applied migrations")
}

func TestMigrator_PostgresUpDownRoundTrip(t *testing.T) {
	store := rawStoreForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100))
	requireMigrationStatus(t, store, 0, 0)

	require.NoError(t, store.MigrateUp(ctx, 1))
	requireMigrationStatus(t, store, 1, 1)

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireMigrationStatus(t, store, 3, 3)

	require.NoError(t, store.EnsureSchema(ctx), "second up is a no-op")
	requireMigrationStatus(t, store, 3, 3)

	// Откат функции голосования не трогает таблицы.
	require.NoError(t, store.MigrateDown(ctx, 0))
	requireMigrationStatus(t, store, 2, 2)

	infos, err := store.Migrations(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.True(t, infos[0].Applied)
	assert.True(t, infos[1].Applied)
	assert.False(t, infos[2].Applied)
	assert.Equal(t, "vote_for_genre", infos[2].Name)

	require.NoError(t, store.MigrateDown(ctx, 5))
	requireMigrationStatus(t, store, 0, 0)
	require.NoError(t, store.MigrateDown(ctx, 1), "rollback of an empty schema is a no-op")

	require.NoError(t, store.EnsureSchema(ctx))
}

func TestMigrator_NilStoreAndBadDirection(t *testing.T) {
	ctx := context.Background()
	var nilStore *Store

	assert.ErrorIs(t, nilStore.MigrateUp(ctx, 0), errStoreNotInitialized)
	assert.ErrorIs(t, nilStore.MigrateDown(ctx, 1), errStoreNotInitialized)
	_, _, err := nilStore.MigrationStatus(ctx)
	assert.ErrorIs(t, err, errStoreNotInitialized)
	_, err = nilStore.Migrations(ctx)
	assert.ErrorIs(t, err, errStoreNotInitialized)

	store := rawStoreForTest(t)
	assert.ErrorContains(t, store.migrate(ctx, migrationDirection("sideways"), 0), "unsupported migration direction")
}
