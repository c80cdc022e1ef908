package artifactrepo

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/model"
	"github.com/vigneshm/keel/internal/version"
)

// ApproveVersionFor records that version may deploy in env. Approval is
// monotonic: returns true on a new approval, false if already approved.
func (r *Repository) ApproveVersionFor(configName string, name string, typ model.ArtifactType, ver, envName string) (bool, error) {
	if _, err := r.loadArtifact(name, typ); err != nil {
		return false, err
	}

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.PromotionRecord{
		ConfigName:   configName,
		ArtifactName: name,
		ArtifactType: string(typ),
		EnvName:      envName,
		Version:      ver,
		ApprovedAt:   r.clock.Now(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("approve version: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsApprovedFor reports whether version has been approved in env.
func (r *Repository) IsApprovedFor(configName, name string, typ model.ArtifactType, ver, envName string) (bool, error) {
	var count int64
	err := r.db.Model(&db.PromotionRecord{}).
		Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ? AND version = ?",
			configName, name, string(typ), envName, ver).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("is approved for: %w", err)
	}
	return count > 0, nil
}

// MarkAsDeployingTo marks version as deploying in env. No-op if version has
// not been approved in env.
func (r *Repository) MarkAsDeployingTo(configName, name string, typ model.ArtifactType, ver, envName string) error {
	now := r.clock.Now()
	result := r.db.Model(&db.PromotionRecord{}).
		Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ? AND version = ?",
			configName, name, string(typ), envName, ver).
		Update("deploying_at", now)
	if result.Error != nil {
		return fmt.Errorf("mark as deploying: %w", result.Error)
	}
	return nil
}

// MarkAsSuccessfullyDeployedTo sets version as current in env; the prior
// current version, if any, joins previous (no separate row to move —
// previous membership is derived from older DeployedSuccessfullyAt values).
func (r *Repository) MarkAsSuccessfullyDeployedTo(configName, name string, typ model.ArtifactType, ver, envName string) error {
	now := r.clock.Now()
	result := r.db.Model(&db.PromotionRecord{}).
		Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ? AND version = ?",
			configName, name, string(typ), envName, ver).
		Update("deployed_successfully_at", now)
	if result.Error != nil {
		return fmt.Errorf("mark as successfully deployed: %w", result.Error)
	}
	return nil
}

// WasSuccessfullyDeployedTo reports whether version was ever marked
// successfully deployed to env.
func (r *Repository) WasSuccessfullyDeployedTo(configName, name string, typ model.ArtifactType, ver, envName string) (bool, error) {
	var rec db.PromotionRecord
	err := r.db.Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ? AND version = ?",
		configName, name, string(typ), envName, ver).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("was successfully deployed to: %w", err)
	}
	return rec.DeployedSuccessfullyAt != nil, nil
}

// LatestVersionApprovedIn returns the highest-ranked approved version in
// env matching statusFilter, or "" if none.
func (r *Repository) LatestVersionApprovedIn(configName, name string, typ model.ArtifactType, envName string, statusFilter []model.ArtifactStatus) (string, error) {
	var promos []db.PromotionRecord
	err := r.db.Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ?",
		configName, name, string(typ), envName).Find(&promos).Error
	if err != nil {
		return "", fmt.Errorf("latest version approved in: %w", err)
	}
	if len(promos) == 0 {
		return "", nil
	}

	a, err := r.loadArtifact(name, typ)
	if err != nil {
		return "", err
	}
	accepted, err := r.acceptedVersionStatuses(name, typ, statusFilter)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, p := range promos {
		if status, ok := accepted[p.Version]; ok && (len(statusFilter) == 0 || statusIn(status, statusFilter)) {
			candidates = append(candidates, p.Version)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	cmp, err := version.ForArtifact(*a, r.logger)
	if err != nil {
		return "", err
	}
	sortVersionsDesc(candidates, cmp)
	return candidates[0], nil
}

// acceptedVersionStatuses returns a map of version -> status for every
// known version of (name, typ).
func (r *Repository) acceptedVersionStatuses(name string, typ model.ArtifactType, _ []model.ArtifactStatus) (map[string]model.ArtifactStatus, error) {
	var records []db.ArtifactVersionRecord
	if err := r.db.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load version statuses: %w", err)
	}
	out := make(map[string]model.ArtifactStatus, len(records))
	for _, rec := range records {
		out[rec.Version] = model.ArtifactStatus(rec.Status)
	}
	return out, nil
}

// VersionsByEnvironment returns the per-(environment, artifact) roll-up for
// every environment named in envNames, for the artifacts identified by
// artifactRefs.
func (r *Repository) VersionsByEnvironment(configName string, artifactRefs []model.ArtifactRef, envNames []string) ([]model.EnvironmentRollup, error) {
	var out []model.EnvironmentRollup
	for _, envName := range envNames {
		for _, ref := range artifactRefs {
			rollup, err := r.rollupFor(configName, ref.Name, ref.Type, envName)
			if err != nil {
				return nil, err
			}
			out = append(out, rollup)
		}
	}
	return out, nil
}

func (r *Repository) rollupFor(configName, name string, typ model.ArtifactType, envName string) (model.EnvironmentRollup, error) {
	rollup := model.EnvironmentRollup{EnvName: envName, ArtifactName: name, ArtifactType: typ}

	a, err := r.loadArtifact(name, typ)
	if err != nil {
		return rollup, err
	}

	var allVersions []db.ArtifactVersionRecord
	if err := r.db.Where("artifact_name = ? AND artifact_type = ?", name, string(typ)).Find(&allVersions).Error; err != nil {
		return rollup, fmt.Errorf("rollup: load versions: %w", err)
	}

	var promos []db.PromotionRecord
	if err := r.db.Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ?",
		configName, name, string(typ), envName).Find(&promos).Error; err != nil {
		return rollup, fmt.Errorf("rollup: load promotions: %w", err)
	}

	used := make(map[string]struct{})
	var currentVersion string
	var latestSuccess *db.PromotionRecord
	for i := range promos {
		p := &promos[i]
		if p.DeployedSuccessfullyAt != nil {
			if latestSuccess == nil || p.DeployedSuccessfullyAt.After(*latestSuccess.DeployedSuccessfullyAt) {
				latestSuccess = p
			}
		}
	}
	if latestSuccess != nil {
		currentVersion = latestSuccess.Version
		used[currentVersion] = struct{}{}
	}

	for _, p := range promos {
		if p.Version == currentVersion {
			continue
		}
		if p.DeployedSuccessfullyAt != nil {
			rollup.Previous = append(rollup.Previous, p.Version)
			used[p.Version] = struct{}{}
			continue
		}
		if p.DeployingAt != nil {
			rollup.Deploying = p.Version
			used[p.Version] = struct{}{}
		}
	}

	for _, v := range allVersions {
		if !a.AcceptsStatus(model.ArtifactStatus(v.Status)) {
			continue
		}
		if _, seen := used[v.Version]; seen {
			continue
		}
		rollup.Pending = append(rollup.Pending, v.Version)
	}

	cmp, err := version.ForArtifact(*a, r.logger)
	if err != nil {
		return rollup, err
	}
	sortVersionsDesc(rollup.Pending, cmp)
	sortVersionsDesc(rollup.Previous, cmp)
	rollup.Current = currentVersion
	return rollup, nil
}

// GetVersionInfo returns the stored version plus its roll-up status within
// each (config, env) it participates in.
type VersionInfo struct {
	ArtifactName string
	ArtifactType model.ArtifactType
	Version      string
	Status       model.ArtifactStatus
	Phases       map[string]model.PromotionPhase // keyed "configName/envName"
}

func (r *Repository) GetVersionInfo(name string, typ model.ArtifactType, ver string) (*VersionInfo, error) {
	var record db.ArtifactVersionRecord
	err := r.db.Where("artifact_name = ? AND artifact_type = ? AND version = ?", name, string(typ), ver).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("get version info: %w", err)
		}
		return nil, fmt.Errorf("get version info: %w", err)
	}

	var promos []db.PromotionRecord
	if err := r.db.Where("artifact_name = ? AND artifact_type = ? AND version = ?", name, string(typ), ver).Find(&promos).Error; err != nil {
		return nil, fmt.Errorf("get version info: load promotions: %w", err)
	}

	info := &VersionInfo{
		ArtifactName: record.ArtifactName,
		ArtifactType: model.ArtifactType(record.ArtifactType),
		Version:      record.Version,
		Status:       model.ArtifactStatus(record.Status),
		Phases:       make(map[string]model.PromotionPhase, len(promos)),
	}
	for _, p := range promos {
		key := p.ConfigName + "/" + p.EnvName
		switch {
		case p.DeployedSuccessfullyAt != nil:
			var newer int64
			if err := r.db.Model(&db.PromotionRecord{}).
				Where("config_name = ? AND artifact_name = ? AND artifact_type = ? AND env_name = ? AND deployed_successfully_at > ?",
					p.ConfigName, name, string(typ), p.EnvName, *p.DeployedSuccessfullyAt).
				Count(&newer).Error; err != nil {
				return nil, fmt.Errorf("get version info: load later deployments: %w", err)
			}
			if newer > 0 {
				info.Phases[key] = model.PhasePrevious
			} else {
				info.Phases[key] = model.PhaseCurrent
			}
		case p.DeployingAt != nil:
			info.Phases[key] = model.PhaseDeploying
		default:
			info.Phases[key] = model.PhasePending
		}
	}
	return info, nil
}
