package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the ZMS client and the
// lock return these (optionally wrapped) so services can decide how a pass
// should react without inspecting backend-specific errors.
//
// - ErrNotFound: no record is stored under the requested name
// - ErrUnavailable: a remote dependency could not be reached or answered badly
// - ErrInvalidState: persisted data could not be interpreted
// - ErrLocked: another holder owns the pass lock
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
	ErrLocked       = errors.New("locked")
)
