// Package periodiccheck implements the atomic select-and-advance protocol
// used by both the resource repository and the delivery-config repository
// to hand out items whose last-checked timestamp has gone stale, without
// two concurrent callers ever claiming the same item.
package periodiccheck

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/keelerrors"
)

// InitialLastChecked is the timestamp a newly created item's last-check
// row is stamped with: epoch plus one second, so the item is immediately
// due for its first check.
var InitialLastChecked = time.Unix(1, 0).UTC()

// ClaimDue selects up to limit rows from table whose timeColumn is either
// NULL or at or before now.Add(-minSinceLast), orders them by timeColumn
// ascending with uidColumn ascending as a tiebreak (stalest first, for
// fairness), advances timeColumn to now for the selected rows, and
// returns the uids claimed.
//
// It uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent callers never
// claim the same row, falling back to a plain ordered SELECT for dialects
// that reject the clause (SQLite), mirroring the two-path claim used by
// the job queue this is grounded on.
func ClaimDue(db *gorm.DB, clk clock.Clock, table, uidColumn, timeColumn string, minSinceLast time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	if minSinceLast < 0 {
		return nil, fmt.Errorf("%w: min-since-last must not be negative", keelerrors.ErrInvalidArgument)
	}

	now := clk.Now()
	cutoff := now.Add(-minSinceLast)

	var uids []string
	err := db.Transaction(func(tx *gorm.DB) error {
		query := fmt.Sprintf(`
			SELECT %s FROM %s
			WHERE %s IS NULL OR %s <= ?
			ORDER BY %s ASC, %s ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, uidColumn, table, timeColumn, timeColumn, timeColumn, uidColumn)

		result := tx.Raw(query, cutoff, limit).Scan(&uids)
		if result.Error != nil {
			uids = nil
			fallback := fmt.Sprintf(`
				SELECT %s FROM %s
				WHERE %s IS NULL OR %s <= ?
				ORDER BY %s ASC, %s ASC
				LIMIT ?
			`, uidColumn, table, timeColumn, timeColumn, timeColumn, uidColumn)
			if err := tx.Raw(fallback, cutoff, limit).Scan(&uids).Error; err != nil {
				return err
			}
		}

		if len(uids) == 0 {
			return nil
		}

		return tx.Table(table).
			Where(fmt.Sprintf("%s IN ?", uidColumn), uids).
			Update(timeColumn, now).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim due rows from %s: %w", table, err)
	}
	return uids, nil
}
