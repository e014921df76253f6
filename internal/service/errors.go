package service

import (
	"errors"
	"fmt"

	"github.com/cst_tracker/backend/internal/db"
	"github.com/cst_tracker/backend/internal/dispatch"
)

// Operation errors surfaced to callers. Workflow violations are reported as
// *workflow.InvalidTransitionError (carrying the allowed set); dispatch pool
// exhaustion as dispatch.ErrNoAgentAvailable.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidMilestone   = errors.New("invalid milestone type")
	ErrAlreadyRated       = errors.New("request already rated")
	ErrInvalidStars       = errors.New("stars must be between 1 and 5")
	ErrRequestNotResolved = errors.New("request not resolved or closed")
	ErrConflict           = errors.New("request was modified concurrently")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoAgentAvailable re-exports the dispatch sentinel so callers can
	// match it without importing dispatch.
	ErrNoAgentAvailable = dispatch.ErrNoAgentAvailable
)

// mapStoreErr translates storage-layer errors into the service taxonomy.
// Anything that is not a recognized condition becomes StorageUnavailable,
// passed through without retrying.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
