package param

import "errors"

// Sentinel errors for parameter construction.
var (
	// ErrShapeMismatch indicates a value and its initializer disagree on shape.
	ErrShapeMismatch = errors.New("parameter shape mismatch")

	// ErrUnknownInit indicates an initializer name that is not registered.
	ErrUnknownInit = errors.New("unknown initializer")

	// ErrDuplicateName indicates two parameters registered under one name.
	ErrDuplicateName = errors.New("duplicate parameter name")

	// ErrInitShape indicates an initializer that cannot produce the requested shape.
	ErrInitShape = errors.New("initializer does not support shape")
)
