package deliveryrepo

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/model"
)

// StoreConstraintState upserts the latest state for
// (config, env, version, type).
func (r *Repository) StoreConstraintState(state model.ConstraintState) error {
	record := db.ConstraintStateRecord{
		ConfigName: state.ConfigName,
		EnvName:    state.EnvName,
		Version:    state.Version,
		Type:       state.Type,
		Status:     string(state.Status),
		JudgedBy:   state.JudgedBy,
		JudgedAt:   state.JudgedAt,
		Comment:    state.Comment,
		UpdatedAt:  r.clock.Now(),
	}
	return r.gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "config_name"}, {Name: "env_name"}, {Name: "version"}, {Name: "type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"status", "judged_by", "judged_at", "comment", "updated_at"}),
	}).Create(&record).Error
}

// GetConstraintState is a point lookup; returns nil, nil if absent.
func (r *Repository) GetConstraintState(configName, envName, version, typ string) (*model.ConstraintState, error) {
	var record db.ConstraintStateRecord
	err := r.gdb.Where("config_name = ? AND env_name = ? AND version = ? AND type = ?",
		configName, envName, version, typ).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get constraint state: %w", err)
	}
	return toConstraintState(record), nil
}

// ConstraintStateForApplication returns, for each (env, type) among the
// app's configs, the most recent state across all versions (at most one
// per pair).
func (r *Repository) ConstraintStateForApplication(app string) ([]model.ConstraintState, error) {
	configs, err := r.GetByApplication(app)
	if err != nil {
		return nil, err
	}

	type key struct{ env, typ string }
	latest := make(map[key]db.ConstraintStateRecord)

	for _, cfg := range configs {
		var records []db.ConstraintStateRecord
		if err := r.gdb.Where("config_name = ?", cfg.Name).Find(&records).Error; err != nil {
			return nil, fmt.Errorf("constraint state for application: %w", err)
		}
		for _, rec := range records {
			k := key{rec.EnvName, rec.Type}
			if existing, ok := latest[k]; !ok || rec.UpdatedAt.After(existing.UpdatedAt) {
				latest[k] = rec
			}
		}
	}

	out := make([]model.ConstraintState, 0, len(latest))
	for _, rec := range latest {
		out = append(out, *toConstraintState(rec))
	}
	return out, nil
}

// ConstraintStateForEnvironment returns the most recent limit states
// across all types in (config, env), sorted by recency descending.
func (r *Repository) ConstraintStateForEnvironment(configName, envName string, limit int) ([]model.ConstraintState, error) {
	var records []db.ConstraintStateRecord
	query := r.gdb.Where("config_name = ? AND env_name = ?", configName, envName).Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("constraint state for environment: %w", err)
	}
	out := make([]model.ConstraintState, 0, len(records))
	for _, rec := range records {
		out = append(out, *toConstraintState(rec))
	}
	return out, nil
}

// ConstraintStateByEnvironment returns all constraint states for every
// version in configName/envName, used by batch constraint evaluation.
func (r *Repository) ConstraintStateByEnvironment(configName, envName string) ([]model.ConstraintState, error) {
	var records []db.ConstraintStateRecord
	if err := r.gdb.Where("config_name = ? AND env_name = ?", configName, envName).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("constraint state by environment: %w", err)
	}
	out := make([]model.ConstraintState, 0, len(records))
	for _, rec := range records {
		out = append(out, *toConstraintState(rec))
	}
	return out, nil
}

func toConstraintState(rec db.ConstraintStateRecord) *model.ConstraintState {
	return &model.ConstraintState{
		ConfigName: rec.ConfigName,
		EnvName:    rec.EnvName,
		Version:    rec.Version,
		Type:       rec.Type,
		Status:     model.ConstraintStatus(rec.Status),
		JudgedBy:   rec.JudgedBy,
		JudgedAt:   rec.JudgedAt,
		Comment:    rec.Comment,
		UpdatedAt:  rec.UpdatedAt,
	}
}
