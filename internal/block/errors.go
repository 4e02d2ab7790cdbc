package block

import "errors"

// Sentinel errors.
var (
	// ErrNotBuilt is returned when a model is used before Build.
	ErrNotBuilt = errors.New("model not built")

	// ErrNoInput is raised when a block is called without any valid input.
	ErrNoInput = errors.New("block called without inputs")

	// ErrUnknownKind is returned by Unfreeze for an unregistered block kind.
	ErrUnknownKind = errors.New("unknown block kind")

	// ErrNotFreezable is returned by Freeze for blocks that do not describe
	// their architecture.
	ErrNotFreezable = errors.New("block is not configurable")

	// ErrMissingParam is returned by Unfreeze when the container lacks a
	// declared parameter.
	ErrMissingParam = errors.New("parameter missing from container")
)
