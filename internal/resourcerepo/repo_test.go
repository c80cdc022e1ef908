package resourcerepo

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigneshm/keel/internal/clock"
	keeldb "github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/keelerrors"
	"github.com/vigneshm/keel/internal/model"
)

func newTestRepo(t *testing.T) (*Repository, *clock.Fake) {
	t.Helper()
	gormDB, err := keeldb.OpenMemory()
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(gormDB, fake, nil), fake
}

func sampleResource(id string) model.Resource {
	return model.Resource{
		ID:          id,
		APIVersion:  "v1",
		Kind:        "Deployment",
		Application: "keeldemo",
		Metadata:    map[string]any{"owner": "platform"},
		Spec:        map[string]any{"replicas": float64(3)},
	}
}

func TestStoreAssignsUidAndPreservesItOnUpdate(t *testing.T) {
	repo, _ := newTestRepo(t)
	stored, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	require.NotEmpty(t, stored.UID)

	stored.Spec["replicas"] = float64(5)
	updated, err := repo.Store(stored)
	require.NoError(t, err)
	assert.Equal(t, stored.UID, updated.UID)

	got, err := repo.Get("res-1")
	require.NoError(t, err)
	assert.Equal(t, float64(5), got.Spec["replicas"])
}

func TestGetUnknownIdFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, keelerrors.ErrNoSuchResourceId)
}

func TestGetByApplicationAndSummary(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	_, err = repo.Store(sampleResource("res-2"))
	require.NoError(t, err)

	resources, err := repo.GetByApplication("keeldemo")
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	ids, err := repo.GetIDsByApplication("keeldemo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"res-1", "res-2"}, ids)

	has, err := repo.HasManagedResources("keeldemo")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasManagedResources("other-app")
	require.NoError(t, err)
	assert.False(t, has)

	summaries, err := repo.GetSummaryByApplication("keeldemo")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, "Deployment", s.Kind)
		assert.Empty(t, s.Status)
	}
}

func TestDeleteCascadesEventsAndLastChecked(t *testing.T) {
	repo, clk := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)

	require.NoError(t, repo.AppendHistory(model.ResourceEvent{
		ResourceUID: mustUID(t, repo, "res-1"), Timestamp: clk.Now(), Kind: "created",
	}))

	require.NoError(t, repo.Delete("res-1"))

	_, err = repo.Get("res-1")
	assert.ErrorIs(t, err, keelerrors.ErrNoSuchResourceId)

	_, err = repo.EventHistory("res-1", 10)
	assert.ErrorIs(t, err, keelerrors.ErrNoSuchResourceId)
}

func TestDeleteByApplication(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	_, err = repo.Store(sampleResource("res-2"))
	require.NoError(t, err)

	count, err := repo.DeleteByApplication("keeldemo")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	has, err := repo.HasManagedResources("keeldemo")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAllResourcesVisitsEveryHeader(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	_, err = repo.Store(sampleResource("res-2"))
	require.NoError(t, err)

	var seen []string
	require.NoError(t, repo.AllResources(func(h model.ResourceHeader) error {
		seen = append(seen, h.ID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"res-1", "res-2"}, seen)
}

func TestAppendHistorySuppressesImmediateRepeat(t *testing.T) {
	repo, clk := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	uid := mustUID(t, repo, "res-1")

	require.NoError(t, repo.AppendHistory(model.ResourceEvent{
		ResourceUID: uid, Timestamp: clk.Now(), Kind: "healthy", SuppressRepeats: true,
	}))
	clk.Advance(time.Minute)
	require.NoError(t, repo.AppendHistory(model.ResourceEvent{
		ResourceUID: uid, Timestamp: clk.Now(), Kind: "healthy", SuppressRepeats: true,
	}))
	clk.Advance(time.Minute)
	require.NoError(t, repo.AppendHistory(model.ResourceEvent{
		ResourceUID: uid, Timestamp: clk.Now(), Kind: "unhealthy", SuppressRepeats: true,
	}))

	events, err := repo.EventHistory("res-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "unhealthy", events[0].Kind)
	assert.Equal(t, "healthy", events[1].Kind)
}

func TestEventHistoryRejectsNonPositiveLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)
	_, err = repo.EventHistory("res-1", 0)
	assert.ErrorIs(t, err, keelerrors.ErrInvalidArgument)
}

// Mirrors end-to-end scenario 6's claim semantics, applied to resources.
func TestClaimDueIsExclusiveAndReopensAfterWindow(t *testing.T) {
	repo, clk := newTestRepo(t)
	_, err := repo.Store(sampleResource("res-1"))
	require.NoError(t, err)

	first, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	clk.Advance(time.Hour)
	third, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestClaimDueRejectsNegativeDuration(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.ClaimDue(-time.Hour, 10)
	assert.ErrorIs(t, err, keelerrors.ErrInvalidArgument)
}

// K parallel claimants against the same stale pool never double-claim.
func TestClaimDueIsExclusiveUnderConcurrency(t *testing.T) {
	repo, _ := newTestRepo(t)
	for i := 0; i < 20; i++ {
		_, err := repo.Store(sampleResource(fmt.Sprintf("res-%d", i)))
		require.NoError(t, err)
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := repo.ClaimDue(time.Hour, 4)
			require.NoError(t, err)
			results[i] = claimed
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	total := 0
	for _, r := range results {
		for _, uid := range r {
			assert.False(t, seen[uid], "uid %s claimed more than once", uid)
			seen[uid] = true
			total++
		}
	}
	assert.LessOrEqual(t, total, 20)
}

func mustUID(t *testing.T, repo *Repository, id string) string {
	t.Helper()
	uid, err := repo.GetUIDByID(id)
	require.NoError(t, err)
	return uid
}
