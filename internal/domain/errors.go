package domain

import "errors"

// Error taxonomy. Work items classify failures with errors.Is: transient
// errors are retried on the next cycle, conflicts mean an optimistic update
// lost after exhausting its attempts, data errors mark one item as
// unprocessable while the rest proceed.
var (
	ErrTransient = errors.New("transient failure")
	ErrConflict  = errors.New("conflicting concurrent update")
	ErrData      = errors.New("unprocessable data")
)
