// Package dispatch selects the concrete variant tag to decode a polymorphic
// payload into, given only the set of field names observed on the encoded
// object. Each dispatcher is a priority-ordered rule list: the first rule
// whose predicate matches wins, with an explicit default fallback.
package dispatch

import (
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/vigneshm/keel/internal/model"
)

// FieldSet is the set of field names observed on an encoded object.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from a list of field names.
func NewFieldSet(names ...string) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Has reports whether name is present in the set.
func (fs FieldSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Rule is one entry in a dispatcher's priority-ordered list.
type Rule struct {
	Predicate func(FieldSet) bool
	Variant   string
}

// Dispatcher evaluates its rule list in order and returns the first
// matching variant, falling back to Default if none match.
type Dispatcher struct {
	Rules   []Rule
	Default string
}

// Dispatch returns the variant tag for fields.
func (d Dispatcher) Dispatch(fields FieldSet) string {
	for _, r := range d.Rules {
		if r.Predicate(fields) {
			return r.Variant
		}
	}
	return d.Default
}

// hasField returns a predicate matching when name is present.
func hasField(name string) func(FieldSet) bool {
	return func(fs FieldSet) bool { return fs.Has(name) }
}

const (
	VariantDockerStrategy = "docker-strategy"
	VariantDebianStrategy = "debian-strategy"

	VariantContainerDigest = "container-digest-pinned"
	VariantContainerTag    = "container-versioned-tag"

	VariantArtifactRefDebian = "artifact-ref-debian"
	VariantArtifactRefDocker = "artifact-ref-docker"
)

// VersioningStrategyDispatcher picks between the Docker and Debian
// versioning strategy variants based on the presence of
// "tagVersionStrategy".
var VersioningStrategyDispatcher = Dispatcher{
	Rules: []Rule{
		{Predicate: hasField("tagVersionStrategy"), Variant: VariantDockerStrategy},
	},
	Default: VariantDebianStrategy,
}

// ContainerKindDispatcher picks between a digest-pinned and a
// versioned-tag container reference based on the presence of "digest".
var ContainerKindDispatcher = Dispatcher{
	Rules: []Rule{
		{Predicate: hasField("digest"), Variant: VariantContainerDigest},
	},
	Default: VariantContainerTag,
}

// ArtifactReferenceKindDispatcher picks the concrete artifact-reference
// variant used when decoding DeliveryConfig.artifacts[] entries: a
// "debian" field present selects the Debian reference, an "image" or
// "tag" field present selects the Docker reference.
var ArtifactReferenceKindDispatcher = Dispatcher{
	Rules: []Rule{
		{Predicate: hasField("debian"), Variant: VariantArtifactRefDebian},
		{Predicate: hasField("image"), Variant: VariantArtifactRefDocker},
		{Predicate: hasField("tag"), Variant: VariantArtifactRefDocker},
	},
	Default: VariantArtifactRefDebian,
}

// ParseContainerImage decodes a generic Docker artifact-reference payload
// (caller-decoded from JSON/YAML) into a model.ContainerImage, using
// ContainerKindDispatcher to pick between the digest-pinned and
// versioned-tag variants. A digest-pinned payload must carry a
// content-addressable digest that validates under the OCI digest grammar.
func ParseContainerImage(fields map[string]string) (model.ContainerImage, error) {
	fs := NewFieldSet(keysOf(fields)...)
	img := model.ContainerImage{Repository: fields["repository"]}

	switch ContainerKindDispatcher.Dispatch(fs) {
	case VariantContainerDigest:
		d, err := digest.Parse(fields["digest"])
		if err != nil {
			return model.ContainerImage{}, fmt.Errorf("parse container digest: %w", err)
		}
		img.Digest = d
	default:
		img.Tag = fields["tag"]
	}
	return img, nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
