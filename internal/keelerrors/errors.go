// Package keelerrors defines the closed set of domain errors the
// persistence core raises, mirroring the teacher's sentinel-error
// convention (e.g. catalog/plugins/mcp/internal/db/service: ErrMcpServerNotFound).
package keelerrors

import (
	"context"
	"database/sql/driver"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNoSuchArtifact is returned when storing or querying an artifact
	// that has not been registered.
	ErrNoSuchArtifact = errors.New("no such artifact")

	// ErrNoSuchDeliveryConfigName is returned when a delivery config is
	// looked up by an unknown name.
	ErrNoSuchDeliveryConfigName = errors.New("no such delivery config")

	// ErrNoSuchResourceId is returned by get/delete/eventHistory on an
	// unknown resource id.
	ErrNoSuchResourceId = errors.New("no such resource id")

	// ErrInvalidArgument is returned for malformed caller input, such as
	// a non-positive eventHistory limit or a negative duration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRegex is returned when a tag comparator's custom regex
	// declares more than one capture group.
	ErrInvalidRegex = errors.New("invalid regex: expected exactly one capture group")

	// ErrTransientStore wraps a failure in the underlying store that the
	// caller may retry with its own backoff policy.
	ErrTransientStore = errors.New("transient store error")
)

// IsTransient reports whether err represents a transient failure of the
// underlying store (connection loss, context cancellation mid-transaction)
// rather than a domain failure. Callers use this to decide whether to
// retry; the core itself never retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientStore) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, gorm.ErrInvalidTransaction) {
		return true
	}
	return false
}

// Transient wraps err as a TransientStoreError when it looks transient,
// otherwise returns err unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return errors.Join(ErrTransientStore, err)
	}
	return err
}
