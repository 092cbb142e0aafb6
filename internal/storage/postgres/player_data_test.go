package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/foundation/internal/storage/postgres"
	"github.com/cory-johannsen/foundation/internal/testutil"
)

func setupRepo(t *testing.T) (*postgres.PlayerDataRepository, *testutil.PostgresContainer) {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewPlayerDataRepository(pc.RawPool), pc
}

func TestPlayerDataRepository(t *testing.T) {
	repo, pc := setupRepo(t)
	ctx := context.Background()

	t.Run("UpsertAndLoad", func(t *testing.T) {
		id := uuid.New()
		saved, err := repo.Upsert(ctx, postgres.PlayerData{
			ID:   id,
			Name: "Alex",
			Data: map[string]any{"coins": 12, "rank": "vip"},
		})
		require.NoError(t, err)
		assert.False(t, saved.UpdatedAt.IsZero())

		got, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Alex", got.Name)
		assert.Equal(t, 12, got.Data["coins"])
		assert.Equal(t, "vip", got.Data["rank"])

		_, err = repo.Upsert(ctx, postgres.PlayerData{ID: id, Name: "Alex2"})
		require.NoError(t, err)
		got, err = repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Alex2", got.Name)
		assert.Empty(t, got.Data)
		assert.NotNil(t, got.Data)
	})

	t.Run("UpsertRejectsNilID", func(t *testing.T) {
		_, err := repo.Upsert(ctx, postgres.PlayerData{Name: "Nobody"})
		assert.Error(t, err)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := repo.Load(ctx, uuid.New())
		assert.ErrorIs(t, err, postgres.ErrPlayerNotFound)
		_, err = repo.LoadByName(ctx, "ghost")
		assert.ErrorIs(t, err, postgres.ErrPlayerNotFound)
	})

	t.Run("LoadByNameIgnoresCase", func(t *testing.T) {
		id := uuid.New()
		_, err := repo.Upsert(ctx, postgres.PlayerData{ID: id, Name: "Samantha"})
		require.NoError(t, err)
		got, err := repo.LoadByName(ctx, "SAMANTHA")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("RecordJoinCounts", func(t *testing.T) {
		id := uuid.New()
		first, err := repo.RecordJoin(ctx, id, "Jordan")
		require.NoError(t, err)
		assert.Equal(t, 1, first.Data[postgres.KeyJoins])
		firstJoin := first.Data[postgres.KeyFirstJoin]
		require.NotEmpty(t, firstJoin)

		second, err := repo.RecordJoin(ctx, id, "jordan")
		require.NoError(t, err)
		assert.Equal(t, "jordan", second.Name)

		got, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Data[postgres.KeyJoins])
		assert.Equal(t, firstJoin, got.Data[postgres.KeyFirstJoin])
	})

	t.Run("TouchAndDelete", func(t *testing.T) {
		id := uuid.New()
		assert.ErrorIs(t, repo.Touch(ctx, id), postgres.ErrPlayerNotFound)
		_, err := repo.Upsert(ctx, postgres.PlayerData{ID: id, Name: "Robin"})
		require.NoError(t, err)
		require.NoError(t, repo.Touch(ctx, id))
		require.NoError(t, repo.Delete(ctx, id))
		assert.ErrorIs(t, repo.Delete(ctx, id), postgres.ErrPlayerNotFound)
	})

	t.Run("Purge", func(t *testing.T) {
		stale, fresh := uuid.New(), uuid.New()
		_, err := repo.Upsert(ctx, postgres.PlayerData{ID: stale, Name: "Stale"})
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, postgres.PlayerData{ID: fresh, Name: "Fresh"})
		require.NoError(t, err)
		_, err = pc.RawPool.Exec(ctx,
			`UPDATE player_data SET updated_at = NOW() - INTERVAL '2 days' WHERE id = $1`, stale)
		require.NoError(t, err)

		n, err := repo.Purge(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
		_, err = repo.Load(ctx, stale)
		assert.ErrorIs(t, err, postgres.ErrPlayerNotFound)
		_, err = repo.Load(ctx, fresh)
		assert.NoError(t, err)

		_, err = repo.Purge(ctx, 0)
		assert.Error(t, err)
	})
}

func TestPool_Health(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	assert.NoError(t, pc.Pool.Health(context.Background(), 2*time.Second))
}

func TestPool_WatchStopsOnCancel(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	require.NoError(t, pc.Pool.Health(context.Background(), 5*time.Second))

	core, logs := observer.New(zap.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pc.Pool.Watch(ctx, 10*time.Millisecond, zap.New(core)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	assert.Zero(t, logs.FilterMessage("database health check failed").Len())
}
