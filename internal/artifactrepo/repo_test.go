package artifactrepo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigneshm/keel/internal/clock"
	keeldb "github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/model"
)

func newTestRepo(t *testing.T) (*Repository, *clock.Fake) {
	t.Helper()
	gormDB, err := keeldb.OpenMemory()
	require.NoError(t, err)
	fake := clock.NewFake(time.Unix(0, 0))
	return New(gormDB, fake, nil), fake
}

func debianArtifact(name string) model.Artifact {
	return model.Artifact{
		Name:         name,
		Type:         model.ArtifactTypeDebian,
		StatusFilter: []model.ArtifactStatus{model.StatusSnapshot},
		Strategy:     model.DebianSemverStrategy(),
	}
}

// Scenario 1: register, store shuffled versions, assert descending order.
func TestScenario1_RegisterAndOrderVersions(t *testing.T) {
	repo, _ := newTestRepo(t)
	foo := debianArtifact("foo")

	registered, err := repo.Register(foo)
	require.NoError(t, err)
	assert.True(t, registered)

	again, err := repo.Register(foo)
	require.NoError(t, err)
	assert.False(t, again)

	versions := []string{
		"keeldemo-0.0.1~dev.9-h9.3d2c8ff",
		"keeldemo-0.0.1~dev.10-h10.1d2d542",
		"keeldemo-0.0.1~dev.8-h8.41595c4",
	}
	for _, v := range versions {
		stored, err := repo.Store("foo", model.ArtifactTypeDebian, v, model.StatusSnapshot)
		require.NoError(t, err)
		assert.True(t, stored)
	}

	// Re-storing is a no-op.
	stored, err := repo.Store("foo", model.ArtifactTypeDebian, versions[0], model.StatusSnapshot)
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := repo.Versions("foo", model.ArtifactTypeDebian, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"keeldemo-0.0.1~dev.10-h10.1d2d542",
		"keeldemo-0.0.1~dev.9-h9.3d2c8ff",
		"keeldemo-0.0.1~dev.8-h8.41595c4",
	}, got)
}

func TestStoreUnregisteredArtifactFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Store("ghost", model.ArtifactTypeDebian, "1.0", model.StatusSnapshot)
	assert.Error(t, err)
}

// Scenarios 3 & 4: promotion state machine roll-up.
func TestScenario3And4_PromotionLifecycle(t *testing.T) {
	repo, clk := newTestRepo(t)
	foo := debianArtifact("foo")
	require.NoError(t, mustRegister(repo, foo))

	dev8, dev9, dev10 := "keeldemo-0.0.1~dev.8", "keeldemo-0.0.1~dev.9", "keeldemo-0.0.1~dev.10"
	for _, v := range []string{dev8, dev9, dev10} {
		_, err := repo.Store("foo", model.ArtifactTypeDebian, v, model.StatusSnapshot)
		require.NoError(t, err)
	}

	refs := []model.ArtifactRef{{Name: "foo", Type: model.ArtifactTypeDebian}}

	rollups, err := repo.VersionsByEnvironment("my-manifest", refs, []string{"test"})
	require.NoError(t, err)
	require.Len(t, rollups, 1)
	assert.ElementsMatch(t, []string{dev8, dev9, dev10}, rollups[0].Pending)
	assert.Empty(t, rollups[0].Current)
	assert.Empty(t, rollups[0].Deploying)
	assert.Empty(t, rollups[0].Previous)

	newlyApproved, err := repo.ApproveVersionFor("my-manifest", "foo", model.ArtifactTypeDebian, dev8, "test")
	require.NoError(t, err)
	assert.True(t, newlyApproved)

	require.NoError(t, repo.MarkAsDeployingTo("my-manifest", "foo", model.ArtifactTypeDebian, dev8, "test"))

	latest, err := repo.LatestVersionApprovedIn("my-manifest", "foo", model.ArtifactTypeDebian, "test", nil)
	require.NoError(t, err)
	assert.Equal(t, dev8, latest)

	deployed, err := repo.WasSuccessfullyDeployedTo("my-manifest", "foo", model.ArtifactTypeDebian, dev8, "test")
	require.NoError(t, err)
	assert.False(t, deployed)

	rollups, err = repo.VersionsByEnvironment("my-manifest", refs, []string{"test"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dev9, dev10}, rollups[0].Pending)
	assert.Equal(t, dev8, rollups[0].Deploying)

	clk.Advance(time.Minute)
	require.NoError(t, repo.MarkAsSuccessfullyDeployedTo("my-manifest", "foo", model.ArtifactTypeDebian, dev8, "test"))

	_, err = repo.ApproveVersionFor("my-manifest", "foo", model.ArtifactTypeDebian, dev9, "test")
	require.NoError(t, err)
	require.NoError(t, repo.MarkAsDeployingTo("my-manifest", "foo", model.ArtifactTypeDebian, dev9, "test"))
	clk.Advance(time.Minute)
	require.NoError(t, repo.MarkAsSuccessfullyDeployedTo("my-manifest", "foo", model.ArtifactTypeDebian, dev9, "test"))

	rollups, err = repo.VersionsByEnvironment("my-manifest", refs, []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, []string{dev10}, rollups[0].Pending)
	assert.Equal(t, dev9, rollups[0].Current)
	assert.Empty(t, rollups[0].Deploying)
	assert.Equal(t, []string{dev8}, rollups[0].Previous)

	for _, v := range []string{dev8, dev9} {
		deployed, err := repo.WasSuccessfullyDeployedTo("my-manifest", "foo", model.ArtifactTypeDebian, v, "test")
		require.NoError(t, err)
		assert.True(t, deployed)
	}
}

// Scenario 5: getAll with type filter.
func TestScenario5_GetAllWithTypeFilter(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, mustRegister(repo, debianArtifact("foo")))
	require.NoError(t, mustRegister(repo, debianArtifact("bar")))
	require.NoError(t, mustRegister(repo, model.Artifact{
		Name: "baz", Type: model.ArtifactTypeDocker, Strategy: model.DockerTagStrategy(model.DockerTagIncreasing, ""),
	}))

	_, err := repo.Store("foo", model.ArtifactTypeDebian, "foo-1", model.StatusSnapshot)
	require.NoError(t, err)
	_, err = repo.Store("bar", model.ArtifactTypeDebian, "bar-1", model.StatusSnapshot)
	require.NoError(t, err)
	_, err = repo.Store("baz", model.ArtifactTypeDocker, "1", model.StatusSnapshot)
	require.NoError(t, err)

	all, err := repo.GetAll(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	docker := model.ArtifactTypeDocker
	dockerOnly, err := repo.GetAll(&docker)
	require.NoError(t, err)
	assert.Len(t, dockerOnly, 1)

	debian := model.ArtifactTypeDebian
	debianOnly, err := repo.GetAll(&debian)
	require.NoError(t, err)
	assert.Len(t, debianOnly, 2)
}

func TestDeleteArtifactCascades(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, mustRegister(repo, debianArtifact("foo")))
	_, err := repo.Store("foo", model.ArtifactTypeDebian, "foo-1", model.StatusSnapshot)
	require.NoError(t, err)
	_, err = repo.ApproveVersionFor("cfg", "foo", model.ArtifactTypeDebian, "foo-1", "test")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteArtifact("foo", model.ArtifactTypeDebian))

	registered, err := repo.IsRegistered("foo", model.ArtifactTypeDebian)
	require.NoError(t, err)
	assert.False(t, registered)

	_, err = repo.Store("foo", model.ArtifactTypeDebian, "foo-2", model.StatusSnapshot)
	assert.Error(t, err)
}

func mustRegister(repo *Repository, a model.Artifact) error {
	_, err := repo.Register(a)
	return err
}
