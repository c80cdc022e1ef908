// Package resourcerepo stores declarative resources, their event history,
// and implements the periodically-checked contract shared with the
// delivery-config repository.
package resourcerepo

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

// Repository stores resources and their event history.
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

// Store upserts a resource by id. A freshly inserted resource is assigned a
// new sortable uid and an immediately-due last-check row; an existing one
// keeps its uid and last-check state untouched.
func (r *Repository) Store(res model.Resource) (model.Resource, error) {
	var out model.Resource
	err := r.gdb.Transaction(func(tx *gorm.DB) error {
		var existing db.ResourceRecord
		err := tx.Where("id = ?", res.ID).First(&existing).Error
		switch {
		case err == nil:
			existing.APIVersion = res.APIVersion
			existing.Kind = res.Kind
			existing.Application = res.Application
			existing.Metadata = res.Metadata
			existing.Spec = res.Spec
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("store resource: update: %w", err)
			}
			out = toResource(existing)
			return nil
		case err == gorm.ErrRecordNotFound:
			uid, genErr := newUID(r.clock)
			if genErr != nil {
				return fmt.Errorf("store resource: generate uid: %w", genErr)
			}
			record := db.ResourceRecord{
				UID:         uid,
				ID:          res.ID,
				APIVersion:  res.APIVersion,
				Kind:        res.Kind,
				Application: res.Application,
				Metadata:    res.Metadata,
				Spec:        res.Spec,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("store resource: insert: %w", err)
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.ResourceLastCheckedRecord{
				ResourceUID:   uid,
				LastCheckedAt: periodiccheck.InitialLastChecked,
			}).Error; err != nil {
				return fmt.Errorf("store resource: seed last-checked: %w", err)
			}
			out = toResource(record)
			return nil
		default:
			return fmt.Errorf("store resource: lookup: %w", err)
		}
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

func toResource(rec db.ResourceRecord) model.Resource {
	return model.Resource{
		UID:         rec.UID,
		ID:          rec.ID,
		APIVersion:  rec.APIVersion,
		Kind:        rec.Kind,
		Application: rec.Application,
		Metadata:    map[string]any(rec.Metadata),
		Spec:        map[string]any(rec.Spec),
	}
}

// Get returns the resource by id, or ErrNoSuchResourceId.
func (r *Repository) Get(id string) (*model.Resource, error) {
	var record db.ResourceRecord
	if err := r.gdb.Where("id = ?", id).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, keelerrors.ErrNoSuchResourceId
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	res := toResource(record)
	return &res, nil
}

// GetUIDByID is a convenience lookup for callers that only need the
// internal identifier, avoiding a full row fetch.
func (r *Repository) GetUIDByID(id string) (string, error) {
	var record db.ResourceRecord
	if err := r.gdb.Select("uid").Where("id = ?", id).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", keelerrors.ErrNoSuchResourceId
		}
		return "", fmt.Errorf("get resource uid: %w", err)
	}
	return record.UID, nil
}

// GetByApplication returns every resource belonging to app.
func (r *Repository) GetByApplication(app string) ([]model.Resource, error) {
	var records []db.ResourceRecord
	if err := r.gdb.Where("application = ?", app).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get resources by application: %w", err)
	}
	out := make([]model.Resource, 0, len(records))
	for _, rec := range records {
		out = append(out, toResource(rec))
	}
	return out, nil
}

// GetIDsByApplication returns the ids of every resource belonging to app.
func (r *Repository) GetIDsByApplication(app string) ([]string, error) {
	var ids []string
	if err := r.gdb.Model(&db.ResourceRecord{}).Where("application = ?", app).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("get resource ids by application: %w", err)
	}
	return ids, nil
}

// HasManagedResources reports whether app has at least one resource.
func (r *Repository) HasManagedResources(app string) (bool, error) {
	var count int64
	if err := r.gdb.Model(&db.ResourceRecord{}).Where("application = ?", app).Count(&count).Error; err != nil {
		return false, fmt.Errorf("has managed resources: %w", err)
	}
	return count > 0, nil
}

// GetSummaryByApplication returns a lightweight per-resource projection for
// app. Status is the kind of the resource's most recent event, or "" if it
// has none.
func (r *Repository) GetSummaryByApplication(app string) ([]model.ResourceSummary, error) {
	var records []db.ResourceRecord
	if err := r.gdb.Where("application = ?", app).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get summary by application: %w", err)
	}
	out := make([]model.ResourceSummary, 0, len(records))
	for _, rec := range records {
		var latest db.ResourceEventRecord
		status := ""
		err := r.gdb.Where("resource_uid = ?", rec.UID).Order("timestamp DESC").First(&latest).Error
		if err == nil {
			status = latest.Kind
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("get summary by application: latest event: %w", err)
		}
		out = append(out, model.ResourceSummary{ID: rec.ID, Kind: rec.Kind, Status: status})
	}
	return out, nil
}

// Delete removes a resource and its event and last-check history.
func (r *Repository) Delete(id string) error {
	return r.gdb.Transaction(func(tx *gorm.DB) error {
		var record db.ResourceRecord
		if err := tx.Where("id = ?", id).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return keelerrors.ErrNoSuchResourceId
			}
			return fmt.Errorf("delete resource: lookup: %w", err)
		}
		if err := tx.Where("resource_uid = ?", record.UID).Delete(&db.ResourceEventRecord{}).Error; err != nil {
			return fmt.Errorf("delete resource: events: %w", err)
		}
		if err := tx.Where("resource_uid = ?", record.UID).Delete(&db.ResourceLastCheckedRecord{}).Error; err != nil {
			return fmt.Errorf("delete resource: last-checked: %w", err)
		}
		return tx.Where("uid = ?", record.UID).Delete(&db.ResourceRecord{}).Error
	})
}

// DeleteByApplication removes every resource belonging to app, returning
// the count removed.
func (r *Repository) DeleteByApplication(app string) (int, error) {
	ids, err := r.GetIDsByApplication(app)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if err := r.Delete(id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// AllResources streams a lightweight header for every resource to visit,
// in batches, stopping at the first error visit returns.
func (r *Repository) AllResources(visit func(model.ResourceHeader) error) error {
	const batchSize = 500
	var batchErr error
	err := r.gdb.Model(&db.ResourceRecord{}).FindInBatches(&[]db.ResourceRecord{}, batchSize, func(tx *gorm.DB, batch int) error {
		var rows []db.ResourceRecord
		if err := tx.Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			if batchErr = visit(model.ResourceHeader{ID: row.ID, APIVersion: row.APIVersion, Kind: row.Kind}); batchErr != nil {
				return batchErr
			}
		}
		return nil
	}).Error
	if batchErr != nil {
		return batchErr
	}
	if err != nil {
		return fmt.Errorf("all resources: %w", err)
	}
	return nil
}

// ClaimDue implements the periodically-checked contract on resources.
func (r *Repository) ClaimDue(minSinceLast time.Duration, limit int) ([]string, error) {
	return periodiccheck.ClaimDue(r.gdb, r.clock, "resource_last_checked", "resource_uid", "last_checked_at", minSinceLast, limit)
}
