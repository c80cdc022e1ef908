package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersioningStrategyDispatcher(t *testing.T) {
	assert.Equal(t, VariantDockerStrategy, VersioningStrategyDispatcher.Dispatch(NewFieldSet("tagVersionStrategy", "name")))
	assert.Equal(t, VariantDebianStrategy, VersioningStrategyDispatcher.Dispatch(NewFieldSet("name")))
}

func TestContainerKindDispatcher(t *testing.T) {
	assert.Equal(t, VariantContainerDigest, ContainerKindDispatcher.Dispatch(NewFieldSet("digest", "image")))
	assert.Equal(t, VariantContainerTag, ContainerKindDispatcher.Dispatch(NewFieldSet("image", "tag")))
}

func TestArtifactReferenceKindDispatcher(t *testing.T) {
	assert.Equal(t, VariantArtifactRefDebian, ArtifactReferenceKindDispatcher.Dispatch(NewFieldSet("debian", "image")))
	assert.Equal(t, VariantArtifactRefDocker, ArtifactReferenceKindDispatcher.Dispatch(NewFieldSet("image")))
	assert.Equal(t, VariantArtifactRefDocker, ArtifactReferenceKindDispatcher.Dispatch(NewFieldSet("tag")))
	assert.Equal(t, VariantArtifactRefDebian, ArtifactReferenceKindDispatcher.Dispatch(NewFieldSet("name")))
}

func TestParseContainerImageDigestPinned(t *testing.T) {
	img, err := ParseContainerImage(map[string]string{
		"repository": "keeldemo",
		"digest":     "sha256:" + strings.Repeat("a", 64),
	})
	require.NoError(t, err)
	assert.Equal(t, "keeldemo", img.Repository)
	assert.Empty(t, img.Tag)
	assert.EqualValues(t, "sha256:"+strings.Repeat("a", 64), img.Digest)
}

func TestParseContainerImageVersionedTag(t *testing.T) {
	img, err := ParseContainerImage(map[string]string{
		"repository": "keeldemo",
		"tag":        "v1.2.3",
	})
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", img.Tag)
	assert.Empty(t, img.Digest)
}

func TestParseContainerImageInvalidDigestFails(t *testing.T) {
	_, err := ParseContainerImage(map[string]string{
		"repository": "keeldemo",
		"digest":     "not-a-digest",
	})
	assert.Error(t, err)
}
