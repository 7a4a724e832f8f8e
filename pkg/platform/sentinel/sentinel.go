package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the ledger adapter, and the
// content resolver return these (optionally wrapped) so services can translate
// them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store or on the ledger
// - ErrConflict: a competing record already occupies the slot
// - ErrInvalidState: entity in wrong state for the requested transition
// - ErrUnavailable: external collaborator temporarily unreachable
// - ErrTimedOut: a submitted ledger transaction was never confirmed
// - ErrReverted: the ledger executed and rejected the transaction
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimedOut     = errors.New("timed out")
	ErrReverted     = errors.New("reverted")
)
