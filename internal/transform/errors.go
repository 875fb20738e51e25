package transform

import (
	"errors"
	"fmt"
)

// Pipeline stage names used in StageError.
const (
	StageInput     = "input"
	StageNormalize = "normalize"
	StageMapDates  = "map_dates"
	StageClean     = "clean"
)

// ErrMalformedInput is wrapped by every StageError.
var ErrMalformedInput = errors.New("malformed input")

// StageError reports input a pipeline stage cannot work with. It is never
// retried here; callers decide.
type StageError struct {
	Stage string
	Value string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v (value %q)", e.Stage, e.Err, e.Value)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func malformed(stage, value, reason string) *StageError {
	return &StageError{
		Stage: stage,
		Value: truncate(value, 64),
		Err:   fmt.Errorf("%w: %s", ErrMalformedInput, reason),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
