package train

import "errors"

// Sentinel errors.
var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrData          = errors.New("inconsistent training data")
	ErrNoLoss        = errors.New("no loss selected")
	ErrNotCheckpoint = errors.New("not a checkpoint")
	ErrConfig        = errors.New("invalid trainer configuration")
)
