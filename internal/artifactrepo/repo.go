// Package artifactrepo stores registered artifacts, their ingested
// versions, and per-environment promotion state, and answers lifecycle
// roll-up queries.
package artifactrepo

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/keelerrors"
	"github.com/vigneshm/keel/internal/model"
	"github.com/vigneshm/keel/internal/version"
)

// Repository provides CRUD and promotion operations over artifacts.
type Repository struct {
	db     *gorm.DB
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Repository. logger defaults to slog.Default() when nil.
func New(gormDB *gorm.DB, clk clock.Clock, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: gormDB, clock: clk, logger: logger}
}

func artifactKey(name string, typ model.ArtifactType) (string, string) {
	return name, string(typ)
}

// Register stores a new artifact. Returns true if newly registered, false
// if an identical artifact already exists (idempotent).
func (r *Repository) Register(a model.Artifact) (bool, error) {
	name, typ := artifactKey(a.Name, a.Type)
	record := db.ArtifactRecord{
		Name:              name,
		Type:              typ,
		StatusFilter:      statusFilterToStrings(a.StatusFilter),
		IsDocker:          a.Strategy.IsDocker,
		DockerKind:        string(a.Strategy.DockerKind),
		DockerCustomRegex: a.Strategy.CustomRegex,
	}

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("register artifact: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsRegistered reports whether (name, typ) has been registered.
func (r *Repository) IsRegistered(name string, typ model.ArtifactType) (bool, error) {
	var count int64
	err := r.db.Model(&db.ArtifactRecord{}).Where("name = ? AND type = ?", name, string(typ)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("is registered: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) loadArtifact(name string, typ model.ArtifactType) (*model.Artifact, error) {
	var record db.ArtifactRecord
	err := r.db.Where("name = ? AND type = ?", name, string(typ)).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, keelerrors.ErrNoSuchArtifact
		}
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	a := &model.Artifact{
		Name:         record.Name,
		Type:         model.ArtifactType(record.Type),
		StatusFilter: stringsToStatusFilter(record.StatusFilter),
		Strategy: model.VersioningStrategy{
			IsDocker:    record.IsDocker,
			DockerKind:  model.DockerTagKind(record.DockerKind),
			CustomRegex: record.DockerCustomRegex,
		},
	}
	return a, nil
}

// Store ingests a version of a registered artifact. Returns true if newly
// stored; false if already present (the first insert's status wins).
func (r *Repository) Store(name string, typ model.ArtifactType, ver string, status model.ArtifactStatus) (bool, error) {
	if _, err := r.loadArtifact(name, typ); err != nil {
		return false, err
	}

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.ArtifactVersionRecord{
		ArtifactName: name,
		ArtifactType: string(typ),
		Version:      ver,
		Status:       string(status),
	})
	if result.Error != nil {
		return false, fmt.Errorf("store version: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Versions returns the artifact's versions matching statusFilter (nil/empty
// means all statuses the artifact accepts), sorted newest-first.
func (r *Repository) Versions(name string, typ model.ArtifactType, statusFilter []model.ArtifactStatus) ([]string, error) {
	a, err := r.loadArtifact(name, typ)
	if err != nil {
		return nil, err
	}

	var records []db.ArtifactVersionRecord
	if err := r.db.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	cmp, err := version.ForArtifact(*a, r.logger)
	if err != nil {
		return nil, err
	}

	effectiveFilter := statusFilter
	if len(effectiveFilter) == 0 {
		effectiveFilter = a.StatusFilter
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if len(effectiveFilter) > 0 && !statusIn(model.ArtifactStatus(rec.Status), effectiveFilter) {
			continue
		}
		out = append(out, rec.Version)
	}
	sortVersionsDesc(out, cmp)
	return out, nil
}

// GetAll returns all registered artifacts, optionally filtered by type.
func (r *Repository) GetAll(typeFilter *model.ArtifactType) ([]model.Artifact, error) {
	query := r.db.Model(&db.ArtifactRecord{})
	if typeFilter != nil {
		query = query.Where("type = ?", string(*typeFilter))
	}
	var records []db.ArtifactRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get all artifacts: %w", err)
	}
	out := make([]model.Artifact, 0, len(records))
	for _, rec := range records {
		out = append(out, model.Artifact{
			Name:         rec.Name,
			Type:         model.ArtifactType(rec.Type),
			StatusFilter: stringsToStatusFilter(rec.StatusFilter),
			Strategy: model.VersioningStrategy{
				IsDocker:    rec.IsDocker,
				DockerKind:  model.DockerTagKind(rec.DockerKind),
				CustomRegex: rec.DockerCustomRegex,
			},
		})
	}
	return out, nil
}

// DeleteArtifact removes an artifact, its versions, and all promotion rows
// scoped to it. Cascades explicitly rather than relying on schema-level
// cascade.
func (r *Repository) DeleteArtifact(name string, typ model.ArtifactType) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Delete(&db.PromotionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Delete(&db.EnvironmentArtifactRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Delete(&db.ArtifactVersionRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ? AND type = ?", name, string(typ)).Delete(&db.ArtifactRecord{}).Error
	})
}

func statusFilterToStrings(f []model.ArtifactStatus) db.JSONStringSlice {
	out := make(db.JSONStringSlice, len(f))
	for i, s := range f {
		out[i] = string(s)
	}
	return out
}

func stringsToStatusFilter(s db.JSONStringSlice) []model.ArtifactStatus {
	out := make([]model.ArtifactStatus, len(s))
	for i, v := range s {
		out[i] = model.ArtifactStatus(v)
	}
	return out
}

func statusIn(s model.ArtifactStatus, filter []model.ArtifactStatus) bool {
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}

func sortVersionsDesc(versions []string, cmp version.Comparator) {
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && cmp.Compare(versions[j], versions[j-1]) > 0; j-- {
			versions[j], versions[j-1] = versions[j-1], versions[j]
		}
	}
}
