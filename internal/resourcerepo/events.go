package resourcerepo

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigneshm/keel/internal/db"
	"github.com/vigneshm/keel/internal/keelerrors"
	"github.com/vigneshm/keel/internal/model"
)

// AppendHistory appends event for its resource, unless the most recent
// existing event for that resource has the same kind and SuppressRepeats is
// set, in which case it is dropped silently. This is a best-effort
// read-before-insert check, not a transactional guarantee against a
// concurrent duplicate append.
func (r *Repository) AppendHistory(event model.ResourceEvent) error {
	if event.SuppressRepeats {
		var latest db.ResourceEventRecord
		err := r.gdb.Where("resource_uid = ?", event.ResourceUID).Order("timestamp DESC").First(&latest).Error
		switch {
		case err == nil:
			if latest.Kind == event.Kind {
				return nil
			}
		case err != gorm.ErrRecordNotFound:
			return fmt.Errorf("append history: check latest: %w", err)
		}
	}

	record := db.ResourceEventRecord{
		ID:          uuid.New().String(),
		ResourceUID: event.ResourceUID,
		Timestamp:   event.Timestamp,
		Kind:        event.Kind,
		Payload:     event.Payload,
	}
	if err := r.gdb.Create(&record).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// EventHistory returns up to limit most recent events for the resource
// identified by id, newest first. Returns ErrNoSuchResourceId if the
// resource has no recorded history, conflating "unknown resource" with "no
// history yet" since both are indistinguishable to a caller. Returns
// ErrInvalidArgument if limit is not positive.
func (r *Repository) EventHistory(id string, limit int) ([]model.ResourceEvent, error) {
	if limit <= 0 {
		return nil, keelerrors.ErrInvalidArgument
	}

	uid, err := r.GetUIDByID(id)
	if err != nil {
		return nil, err
	}

	var records []db.ResourceEventRecord
	if err := r.gdb.Where("resource_uid = ?", uid).Order("timestamp DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	if len(records) == 0 {
		return nil, keelerrors.ErrNoSuchResourceId
	}

	out := make([]model.ResourceEvent, 0, len(records))
	for _, rec := range records {
		out = append(out, model.ResourceEvent{
			ResourceUID: rec.ResourceUID,
			Timestamp:   rec.Timestamp,
			Kind:        rec.Kind,
			Payload:     map[string]any(rec.Payload),
		})
	}
	return out, nil
}
