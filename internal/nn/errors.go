package nn

import "errors"

// Sentinel errors returned by block constructors.
var (
	// ErrConfig reports an invalid or inconsistent block configuration.
	ErrConfig = errors.New("invalid block config")

	// ErrUnknownActivation reports an activation name that is not registered.
	ErrUnknownActivation = errors.New("unknown activation")

	// ErrUnknownCell reports an unknown recurrent cell type.
	ErrUnknownCell = errors.New("unknown cell type")
)
