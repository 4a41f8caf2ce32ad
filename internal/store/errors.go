// Package store holds the sentinel errors shared between the SQLite
// implementation and its callers.
package store

import "errors"

var (
	// ErrPromotionConflict signals a lost compare-and-swap race on the
	// active-version pointer. Callers retry against the new active
	// version or surface the conflict; the store never overwrites.
	ErrPromotionConflict = errors.New("promotion conflict: active version changed")

	// ErrOutcomeAlreadyFilled guards the write-once outcome invariant.
	ErrOutcomeAlreadyFilled = errors.New("outcome already filled; use the correction path")

	// ErrVersionNotFound covers rollback/lookup of unknown versions.
	ErrVersionNotFound = errors.New("rule version not found")

	// ErrNoActiveVersion means the store was never seeded.
	ErrNoActiveVersion = errors.New("no active rule version")

	// ErrRunNotFound covers lookups of unknown learning runs.
	ErrRunNotFound = errors.New("learning run not found")

	// ErrNoCalibration means no calibration artifact was ever saved.
	ErrNoCalibration = errors.New("no calibration artifact")
)
