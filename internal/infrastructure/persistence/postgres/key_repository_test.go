package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/repository"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

var baseTime = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newSQLiteRepo(t *testing.T) (repository.KeyRepository, *DBConnection) {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	conn, err := NewDBConnection(context.Background(), cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, conn.Migrate(context.Background()))
	return NewKeyRepository(conn.DB()), conn
}

func key(id string, created time.Time, validity time.Duration, active bool) *models.SigningKey {
	return &models.SigningKey{
		KeyID:         id,
		Algorithm:     "RS256",
		PublicKeyPEM:  "pub-" + id,
		PrivateKeyPEM: "priv-" + id,
		CreatedAt:     created,
		ExpiresAt:     created.Add(validity),
		IsActive:      active,
	}
}

func ids(keys []*models.SigningKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.KeyID)
	}
	return out
}

func TestKeyRepository_EmptyStoreIsNotAnError(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	active, err := repo.ListActive(ctx, baseTime)
	require.NoError(t, err)
	assert.Empty(t, active)

	valid, err := repo.ListValidForVerification(ctx, baseTime)
	require.NoError(t, err)
	assert.Empty(t, valid)
}

func TestKeyRepository_Listings(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()
	day := 24 * time.Hour

	require.NoError(t, repo.Insert(ctx, key("expired", baseTime.Add(-100*day), 90*day, false)))
	require.NoError(t, repo.Insert(ctx, key("superseded", baseTime.Add(-60*day), 90*day, false)))
	require.NoError(t, repo.Insert(ctx, key("active", baseTime.Add(-1*day), 90*day, true)))

	active, err := repo.ListActive(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, ids(active))
	assert.Equal(t, "priv-active", active[0].PrivateKeyPEM)

	valid, err := repo.ListValidForVerification(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "superseded"}, ids(valid), "newest first, expired excluded")

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// an expiry exactly at now is no longer valid
	valid, err = repo.ListValidForVerification(ctx, baseTime.Add(30*day))
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, ids(valid))
}

func TestKeyRepository_SingleActiveEnforcedByStore(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, key("a", baseTime, time.Hour, true)))
	err := repo.Insert(ctx, key("b", baseTime, time.Hour, true))
	assert.ErrorIs(t, err, repository.ErrActiveKeyConflict)

	// inactive rows are unconstrained
	require.NoError(t, repo.Insert(ctx, key("c", baseTime, time.Hour, false)))
	require.NoError(t, repo.Insert(ctx, key("d", baseTime, time.Hour, false)))
}

func TestKeyRepository_MarkInactiveIsConditional(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, key("a", baseTime, time.Hour, true)))

	flipped, err := repo.MarkInactive(ctx, "a")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.MarkInactive(ctx, "a")
	require.NoError(t, err)
	assert.False(t, flipped, "second flip loses")

	flipped, err = repo.MarkInactive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, flipped)

	// the slot is free again
	require.NoError(t, repo.Insert(ctx, key("b", baseTime, time.Hour, true)))
}

func TestKeyRepository_ConcurrentFlipHasOneWinner(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, key("a", baseTime, time.Hour, true)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkInactive(ctx, "a")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestKeyRepository_ListActiveExpiredAndPurge(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()
	day := 24 * time.Hour

	require.NoError(t, repo.Insert(ctx, key("stale-active", baseTime.Add(-91*day), 90*day, true)))
	require.NoError(t, repo.Insert(ctx, key("long-gone", baseTime.Add(-200*day), 90*day, false)))
	require.NoError(t, repo.Insert(ctx, key("recent-expired", baseTime.Add(-100*day), 90*day, false)))

	stale, err := repo.ListActiveExpired(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-active"}, ids(stale))

	n, err := repo.DeleteExpiredBefore(ctx, baseTime.Add(-30*day))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stale-active", "recent-expired"}, ids(all))
}

func TestKeyRepository_DriverFailureIsStoreUnavailable(t *testing.T) {
	repo, conn := newSQLiteRepo(t)
	conn.Close()

	_, err := repo.ListActive(context.Background(), baseTime)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)

	err = repo.Insert(context.Background(), key("x", baseTime, time.Hour, true))
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestDBConnection_HealthCheck(t *testing.T) {
	_, conn := newSQLiteRepo(t)
	info, err := conn.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", info["status"])
	assert.Equal(t, "sqlite", info["driver"])
}
