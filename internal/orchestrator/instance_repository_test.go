package orchestrator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

func newInstanceRepo(t *testing.T) (*InstanceRepository, func()) {
	t.Helper()
	db, cleanup := apptesting.NewTestDB(t, "cache")
	return NewInstanceRepository(db.Conn(), zerolog.Nop()), cleanup
}

func TestCreateIfAbsentClaimsOnce(t *testing.T) {
	repo, cleanup := newInstanceRepo(t)
	defer cleanup()

	require.NoError(t, repo.CreateIfAbsent("market-cycle-20260830-1200"))

	err := repo.CreateIfAbsent("market-cycle-20260830-1200")
	assert.ErrorIs(t, err, domain.ErrInstanceExists)
}

func TestCreateIfAbsentRespectsFinishedInstances(t *testing.T) {
	repo, cleanup := newInstanceRepo(t)
	defer cleanup()

	require.NoError(t, repo.CreateIfAbsent("market-cycle-20260830-1200"))
	require.NoError(t, repo.MarkRunning("market-cycle-20260830-1200"))
	require.NoError(t, repo.MarkCompleted("market-cycle-20260830-1200", time.Second, `{"ok":true}`))

	// A finished cycle is never re-claimed
	err := repo.CreateIfAbsent("market-cycle-20260830-1200")
	assert.ErrorIs(t, err, domain.ErrInstanceExists)
}

func TestInstanceLifecycle(t *testing.T) {
	repo, cleanup := newInstanceRepo(t)
	defer cleanup()

	require.NoError(t, repo.CreateIfAbsent("inst-1"))

	instance, err := repo.Get("inst-1")
	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, domain.InstancePending, instance.Status)
	assert.Nil(t, instance.CompletedAt)

	require.NoError(t, repo.MarkRunning("inst-1"))
	require.NoError(t, repo.MarkFailed("inst-1", 1500*time.Millisecond, "ingestion failed"))

	instance, err = repo.Get("inst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceFailed, instance.Status)
	require.NotNil(t, instance.DurationMs)
	assert.Equal(t, int64(1500), *instance.DurationMs)
	assert.Equal(t, "ingestion failed", instance.ResultJSON)
}

func TestGetUnknownInstanceIsNil(t *testing.T) {
	repo, cleanup := newInstanceRepo(t)
	defer cleanup()

	instance, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, instance)
}

func TestGetRecentOrdersNewestFirst(t *testing.T) {
	repo, cleanup := newInstanceRepo(t)
	defer cleanup()

	require.NoError(t, repo.CreateIfAbsent("inst-a"))
	require.NoError(t, repo.CreateIfAbsent("inst-b"))
	require.NoError(t, repo.CreateIfAbsent("inst-c"))

	instances, err := repo.GetRecent(2)
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	all, err := repo.GetRecent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
