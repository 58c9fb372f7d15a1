package sim

import "errors"

var (
	ErrInvalidMultiplier = errors.New("speed multiplier must be a positive finite number")
	ErrUnknownTrain      = errors.New("unknown train")
	ErrStopTargets       = errors.New("stop takes one or two train ids")
	ErrNoRun             = errors.New("no run on that day")
)
