package deliveryrepo

import (
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

func sampleConfig() model.DeliveryConfig {
	return model.DeliveryConfig{
		Name:        "my-manifest",
		Application: "keeldemo",
		ArtifactRefs: []model.ArtifactRef{
			{Name: "foo", Type: model.ArtifactTypeDebian},
		},
		Environments: []model.Environment{
			{Name: "test", Constraints: []string{"manual-judgement"}, ResourceIDs: []string{"res-1"}},
		},
	}
}

func TestStoreAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	cfg := sampleConfig()
	require.NoError(t, repo.Store(cfg))

	got, err := repo.Get("my-manifest")
	require.NoError(t, err)
	assert.Equal(t, "keeldemo", got.Application)
	require.Len(t, got.ArtifactRefs, 1)
	assert.Equal(t, "foo", got.ArtifactRefs[0].Name)
	require.Len(t, got.Environments, 1)
	assert.Equal(t, "test", got.Environments[0].Name)
}

func TestGetUnknownNameFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, keelerrors.ErrNoSuchDeliveryConfigName)
}

func TestStoreDetachesRemovedArtifactsAndEnvironments(t *testing.T) {
	repo, _ := newTestRepo(t)
	cfg := sampleConfig()
	require.NoError(t, repo.Store(cfg))

	cfg.ArtifactRefs = nil
	cfg.Environments = nil
	require.NoError(t, repo.Store(cfg))

	got, err := repo.Get("my-manifest")
	require.NoError(t, err)
	assert.Empty(t, got.ArtifactRefs)
	assert.Empty(t, got.Environments)
}

func TestEnvironmentAndDeliveryConfigFor(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Store(sampleConfig()))

	env, err := repo.EnvironmentFor("res-1")
	require.NoError(t, err)
	assert.Equal(t, "test", env)

	cfgName, err := repo.DeliveryConfigFor("res-1")
	require.NoError(t, err)
	assert.Equal(t, "my-manifest", cfgName)

	env, err = repo.EnvironmentFor("unmanaged")
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestDeleteByApplicationRemovesConfigs(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Store(sampleConfig()))

	count, err := repo.DeleteByApplication("keeldemo")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Get("my-manifest")
	assert.ErrorIs(t, err, keelerrors.ErrNoSuchDeliveryConfigName)
}

func TestConstraintStateUpsertLatestWriteWins(t *testing.T) {
	repo, clk := newTestRepo(t)
	require.NoError(t, repo.Store(sampleConfig()))

	state := model.ConstraintState{
		ConfigName: "my-manifest", EnvName: "test", Version: "v1", Type: "manual-judgement",
		Status: model.ConstraintPending,
	}
	require.NoError(t, repo.StoreConstraintState(state))

	clk.Advance(time.Minute)
	state.Status = model.ConstraintPass
	state.JudgedBy = "alice"
	require.NoError(t, repo.StoreConstraintState(state))

	got, err := repo.GetConstraintState("my-manifest", "test", "v1", "manual-judgement")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ConstraintPass, got.Status)
	assert.Equal(t, "alice", got.JudgedBy)
}

// Mirrors end-to-end scenario 6's claim semantics, applied to configs.
func TestClaimDueIsExclusiveAndReopensAfterWindow(t *testing.T) {
	repo, clk := newTestRepo(t)
	require.NoError(t, repo.Store(sampleConfig()))

	first, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"my-manifest"}, first)

	second, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	clk.Advance(time.Hour)
	third, err := repo.ClaimDue(time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"my-manifest"}, third)
}
