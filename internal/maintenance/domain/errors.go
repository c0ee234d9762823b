package maintenance

import "errors"

var (
	// ErrNoValue indicates the asset attribute has no value to compare.
	ErrNoValue = errors.New("maintenance: no value")
	// ErrCast indicates a value could not be cast to the trigger type.
	ErrCast = errors.New("maintenance: cast failed")
	// ErrMisconfiguredTrigger indicates a config without any trigger field.
	ErrMisconfiguredTrigger = errors.New("maintenance: no trigger configured")
	// ErrWorkflow indicates a PM lifecycle step failed.
	ErrWorkflow = errors.New("maintenance: workflow step failed")
	// ErrNoActivities indicates a PM has no pending activity to advance.
	ErrNoActivities = errors.New("maintenance: no pending activities")
)
