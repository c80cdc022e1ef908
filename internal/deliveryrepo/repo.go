// Package deliveryrepo stores delivery configs, their environment and
// artifact membership, constraint state, and implements the
// periodically-checked contract shared with the resource repository.
package deliveryrepo

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/keelerrors"
	"github.com/vigneshm/keel/internal/model"
	"github.com/vigneshm/keel/internal/periodiccheck"
)

// Repository stores delivery configs and constraint state.
type Repository struct {
	gdb    *gorm.DB
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Repository. logger defaults to slog.Default() when nil.
func New(gormDB *gorm.DB, clk clock.Clock, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{gdb: gormDB, clock: clk, logger: logger}
}

// Store upserts config by name. Reconciles artifact and environment
// membership: members no longer present are detached, not cascaded into
// promotion/constraint history.
func (r *Repository) Store(cfg model.DeliveryConfig) error {
	return r.gdb.Transaction(func(tx *gorm.DB) error {
		now := r.clock.Now()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"application", "updated_at"}),
		}).Create(&db.DeliveryConfigRecord{
			Name:        cfg.Name,
			Application: cfg.Application,
			UpdatedAt:   now,
		}).Error; err != nil {
			return fmt.Errorf("store delivery config: %w", err)
		}

		if err := r.reconcileArtifacts(tx, cfg); err != nil {
			return err
		}
		if err := r.reconcileEnvironments(tx, cfg); err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.DeliveryConfigLastCheckedRecord{
			ConfigName:    cfg.Name,
			LastCheckedAt: periodiccheck.InitialLastChecked,
		}).Error
	})
}

func (r *Repository) reconcileArtifacts(tx *gorm.DB, cfg model.DeliveryConfig) error {
	var existing []db.EnvironmentArtifactRecord
	if err := tx.Where("config_name = ?", cfg.Name).Find(&existing).Error; err != nil {
		return fmt.Errorf("reconcile artifacts: load existing: %w", err)
	}

	wanted := make(map[string]model.ArtifactRef, len(cfg.ArtifactRefs))
	for _, ref := range cfg.ArtifactRefs {
		wanted[ref.Name+"/"+string(ref.Type)] = ref
	}

	for _, e := range existing {
		key := e.ArtifactName + "/" + e.ArtifactType
		if _, ok := wanted[key]; !ok {
			if err := tx.Where("config_name = ? AND artifact_name = ? AND artifact_type = ?",
				cfg.Name, e.ArtifactName, e.ArtifactType).Delete(&db.EnvironmentArtifactRecord{}).Error; err != nil {
				return fmt.Errorf("reconcile artifacts: detach: %w", err)
			}
		}
	}

	for _, ref := range cfg.ArtifactRefs {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.EnvironmentArtifactRecord{
			ConfigName:   cfg.Name,
			ArtifactName: ref.Name,
			ArtifactType: string(ref.Type),
		}).Error; err != nil {
			return fmt.Errorf("reconcile artifacts: attach: %w", err)
		}
	}
	return nil
}

func (r *Repository) reconcileEnvironments(tx *gorm.DB, cfg model.DeliveryConfig) error {
	var existing []db.EnvironmentRecord
	if err := tx.Where("config_name = ?", cfg.Name).Find(&existing).Error; err != nil {
		return fmt.Errorf("reconcile environments: load existing: %w", err)
	}

	wanted := make(map[string]model.Environment, len(cfg.Environments))
	for _, e := range cfg.Environments {
		wanted[e.Name] = e
	}

	for _, e := range existing {
		if _, ok := wanted[e.Name]; !ok {
			if err := tx.Where("config_name = ? AND name = ?", cfg.Name, e.Name).Delete(&db.EnvironmentRecord{}).Error; err != nil {
				return fmt.Errorf("reconcile environments: detach: %w", err)
			}
		}
	}

	for _, e := range cfg.Environments {
		record := db.EnvironmentRecord{
			ConfigName:  cfg.Name,
			Name:        e.Name,
			Constraints: stringSlice(e.Constraints),
			ResourceIDs: stringSlice(e.ResourceIDs),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_name"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"constraints", "resource_ids"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("reconcile environments: upsert: %w", err)
		}
	}
	return nil
}

func stringSlice(s []string) db.JSONStringSlice {
	out := make(db.JSONStringSlice, len(s))
	copy(out, s)
	return out
}

// Get returns the config by name, or ErrNoSuchDeliveryConfigName.
func (r *Repository) Get(name string) (*model.DeliveryConfig, error) {
	var record db.DeliveryConfigRecord
	if err := r.gdb.Where("name = ?", name).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, keelerrors.ErrNoSuchDeliveryConfigName
		}
		return nil, fmt.Errorf("get delivery config: %w", err)
	}

	var artifactRows []db.EnvironmentArtifactRecord
	if err := r.gdb.Where("config_name = ?", name).Find(&artifactRows).Error; err != nil {
		return nil, fmt.Errorf("get delivery config: load artifacts: %w", err)
	}
	var envRows []db.EnvironmentRecord
	if err := r.gdb.Where("config_name = ?", name).Find(&envRows).Error; err != nil {
		return nil, fmt.Errorf("get delivery config: load environments: %w", err)
	}

	cfg := &model.DeliveryConfig{Name: record.Name, Application: record.Application}
	for _, a := range artifactRows {
		cfg.ArtifactRefs = append(cfg.ArtifactRefs, model.ArtifactRef{Name: a.ArtifactName, Type: model.ArtifactType(a.ArtifactType)})
	}
	for _, e := range envRows {
		cfg.Environments = append(cfg.Environments, model.Environment{
			Name:        e.Name,
			Constraints: []string(e.Constraints),
			ResourceIDs: []string(e.ResourceIDs),
		})
	}
	return cfg, nil
}

// GetByApplication returns zero or more configs for app.
func (r *Repository) GetByApplication(app string) ([]model.DeliveryConfig, error) {
	var records []db.DeliveryConfigRecord
	if err := r.gdb.Where("application = ?", app).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get by application: %w", err)
	}
	out := make([]model.DeliveryConfig, 0, len(records))
	for _, rec := range records {
		cfg, err := r.Get(rec.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, nil
}

// DeleteByApplication removes configs for app but preserves underlying
// resources; returns the count removed.
func (r *Repository) DeleteByApplication(app string) (int, error) {
	var records []db.DeliveryConfigRecord
	if err := r.gdb.Where("application = ?", app).Find(&records).Error; err != nil {
		return 0, fmt.Errorf("delete by application: %w", err)
	}
	count := 0
	for _, rec := range records {
		if err := r.deleteConfig(rec.Name); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *Repository) deleteConfig(name string) error {
	return r.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("config_name = ?", name).Delete(&db.EnvironmentRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("config_name = ?", name).Delete(&db.EnvironmentArtifactRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("config_name = ?", name).Delete(&db.DeliveryConfigLastCheckedRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&db.DeliveryConfigRecord{}).Error
	})
}

// EnvironmentFor returns the name of the environment that manages
// resourceID, or "" if unmanaged.
func (r *Repository) EnvironmentFor(resourceID string) (string, error) {
	var rows []db.EnvironmentRecord
	if err := r.gdb.Find(&rows).Error; err != nil {
		return "", fmt.Errorf("environment for: %w", err)
	}
	for _, row := range rows {
		for _, id := range row.ResourceIDs {
			if id == resourceID {
				return row.Name, nil
			}
		}
	}
	return "", nil
}

// DeliveryConfigFor returns the name of the config that manages
// resourceID, or "" if unmanaged.
func (r *Repository) DeliveryConfigFor(resourceID string) (string, error) {
	var rows []db.EnvironmentRecord
	if err := r.gdb.Find(&rows).Error; err != nil {
		return "", fmt.Errorf("delivery config for: %w", err)
	}
	for _, row := range rows {
		for _, id := range row.ResourceIDs {
			if id == resourceID {
				return row.ConfigName, nil
			}
		}
	}
	return "", nil
}

// ClaimDue implements the periodically-checked contract on configs.
func (r *Repository) ClaimDue(minSinceLast time.Duration, limit int) ([]string, error) {
	return periodiccheck.ClaimDue(r.gdb, r.clock, "delivery_config_last_checked", "config_name", "last_checked_at", minSinceLast, limit)
}
