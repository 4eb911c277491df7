package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and queues return these
// (optionally wrapped) so flows can translate them into coded EPP errors.
//
// These represent factual states about stored entities, not validation
// failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: entity changed since it was read in this transaction
// - ErrAlreadyExists: insert collided with a live entity
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: store or queue temporarily unavailable
//
// For validation failures (bad input, policy violations), use pkg/epperr
// directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
