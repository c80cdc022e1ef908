// Package model defines the domain types shared by the artifact,
// delivery-config, and resource repositories.
package model

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// ArtifactType discriminates the two supported artifact kinds.
type ArtifactType string

const (
	ArtifactTypeDebian ArtifactType = "debian"
	ArtifactTypeDocker ArtifactType = "docker"
)

// ArtifactStatus is a status tag attached to an ingested version.
type ArtifactStatus string

const (
	StatusSnapshot  ArtifactStatus = "snapshot"
	StatusCandidate ArtifactStatus = "candidate"
	StatusRelease   ArtifactStatus = "release"
	StatusFinal     ArtifactStatus = "final"
)

// DockerTagKind enumerates the built-in Docker tag comparison strategies.
type DockerTagKind string

const (
	DockerTagIncreasing      DockerTagKind = "increasing"
	DockerTagSemver          DockerTagKind = "semver"
	DockerTagBranchQualified DockerTagKind = "branch-qualified"
)

// VersioningStrategy is the sealed value describing how an artifact's
// version strings compare. Exactly one of the two constructors applies;
// Debian-semver is a stateless singleton compared structurally, Docker
// carries a kind and an optional custom capture-group regex.
type VersioningStrategy struct {
	IsDocker    bool
	DockerKind  DockerTagKind
	CustomRegex string
}

// DebianSemverStrategy is the singleton Debian-semver strategy value.
func DebianSemverStrategy() VersioningStrategy {
	return VersioningStrategy{}
}

// DockerTagStrategy constructs a Docker tag strategy value. CustomRegex,
// when non-empty, overrides kind-based regex selection.
func DockerTagStrategy(kind DockerTagKind, customRegex string) VersioningStrategy {
	return VersioningStrategy{IsDocker: true, DockerKind: kind, CustomRegex: customRegex}
}

// Artifact identifies a deployable unit and the rules governing its
// versions: which statuses are accepted and how its versions compare.
type Artifact struct {
	Name         string
	Type         ArtifactType
	StatusFilter []ArtifactStatus
	Strategy     VersioningStrategy
}

// AcceptsStatus reports whether s is in the artifact's status filter. An
// empty filter accepts every status.
func (a Artifact) AcceptsStatus(s ArtifactStatus) bool {
	if len(a.StatusFilter) == 0 {
		return true
	}
	for _, accepted := range a.StatusFilter {
		if accepted == s {
			return true
		}
	}
	return false
}

// ArtifactVersion is a single ingested version of an artifact.
type ArtifactVersion struct {
	ArtifactName string
	ArtifactType ArtifactType
	Version      string
	Status       ArtifactStatus
	CreatedAt    time.Time
}

// PromotionPhase is the derived roll-up bucket a version falls into
// within a single (config, artifact, env).
type PromotionPhase string

const (
	PhasePending   PromotionPhase = "pending"
	PhaseDeploying PromotionPhase = "deploying"
	PhaseCurrent   PromotionPhase = "current"
	PhasePrevious  PromotionPhase = "previous"
)

// PromotionRecord captures the approval and deployment outcome for a
// single (configName, artifactRef, envName, version) tuple.
type PromotionRecord struct {
	ConfigName             string
	ArtifactName           string
	ArtifactType           ArtifactType
	EnvName                string
	Version                string
	ApprovedAt             time.Time
	DeployingAt            *time.Time
	DeployedSuccessfullyAt *time.Time
}

// IsDeploying and IsCurrent classify the record from its timestamps;
// IsCurrent needs the latest successful-deployment time for this key (the
// caller resolves "previous" membership by comparing DeployedSuccessfullyAt
// across the whole set; see artifactrepo's rollupFor for the aggregation).
func (p PromotionRecord) IsDeploying() bool { return p.DeployingAt != nil && p.DeployedSuccessfullyAt == nil }
func (p PromotionRecord) IsCurrent(latestSuccessful time.Time) bool {
	return p.DeployedSuccessfullyAt != nil && p.DeployedSuccessfullyAt.Equal(latestSuccessful)
}

// EnvironmentRollup is the per-(environment, artifact) projection returned
// by versionsByEnvironment.
type EnvironmentRollup struct {
	EnvName      string
	ArtifactName string
	ArtifactType ArtifactType
	Pending      []string
	Current      string
	Deploying    string
	Previous     []string
}

// ConstraintStatus is the judged outcome of a constraint evaluation.
type ConstraintStatus string

const (
	ConstraintPending  ConstraintStatus = "pending"
	ConstraintPass     ConstraintStatus = "pass"
	ConstraintFail     ConstraintStatus = "fail"
	ConstraintOverride ConstraintStatus = "override"
)

// ConstraintState is the mutable, latest-write-wins judgement of a single
// constraint for (configName, envName, version, type).
type ConstraintState struct {
	ConfigName string
	EnvName    string
	Version    string
	Type       string
	Status     ConstraintStatus
	JudgedBy   string
	JudgedAt   *time.Time
	Comment    string
	UpdatedAt  time.Time
}

// Environment is a named promotion target within a delivery config.
type Environment struct {
	Name        string
	Constraints []string
	ResourceIDs []string
}

// DeliveryConfig binds a set of artifacts to an ordered set of
// environments under a globally unique name.
type DeliveryConfig struct {
	Name         string
	Application  string
	ArtifactRefs []ArtifactRef
	Environments []Environment
}

// ArtifactRef names an artifact bound into a delivery config.
type ArtifactRef struct {
	Name string
	Type ArtifactType
}

// ContainerImage is the parsed form of a Docker artifact-reference
// payload: either pinned to a content digest or floating on a tag, as
// decided by the dispatch package's container-kind dispatcher.
type ContainerImage struct {
	Repository string
	Tag        string
	Digest     digest.Digest
}

// Resource is a declarative object managed by the control plane.
type Resource struct {
	UID         string
	ID          string
	APIVersion  string
	Kind        string
	Application string
	Metadata    map[string]any
	Spec        map[string]any
}

// ResourceHeader is the lightweight projection streamed by allResources.
type ResourceHeader struct {
	ID         string
	APIVersion string
	Kind       string
}

// ResourceSummary is the per-resource projection returned by
// getSummaryByApplication.
type ResourceSummary struct {
	ID     string
	Kind   string
	Status string
}

// ResourceEvent is an append-only record attached to a resource.
type ResourceEvent struct {
	ResourceUID     string
	Timestamp       time.Time
	Kind            string
	Payload         map[string]any
	SuppressRepeats bool
}
