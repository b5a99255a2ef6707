package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"

	"watchtower/pkg/models"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("record not found")

// ErrTransient marks connectivity and timeout failures that are worth
// retrying. Wrap causes with it so callers can classify with errors.Is.
var ErrTransient = errors.New("transient repository error")

// CameraRepository is the narrow read-only contract the resolver consumes.
// The core never writes to the backing store.
type CameraRepository interface {
	ListCamerasByDirection(ctx context.Context, direction string) ([]models.Camera, error)
	ListEnabledAngleRanges(ctx context.Context) ([]models.AngleRange, error)
	GetCameraByID(ctx context.Context, id string) (*models.Camera, error)
}

// IsTransient reports whether an error is a retryable connectivity failure
// rather than a permanent fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exceptions, 53: insufficient resources,
		// 57P: operator intervention (shutdown/restart)
		class := string(pqErr.Code.Class())
		return class == "08" || class == "53" || class == "57"
	}
	return false
}
