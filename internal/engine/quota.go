package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxLoopIterations is the default loop iteration budget per call.
const DefaultMaxLoopIterations = 1_000_000

// loopQuota counts loop iterations across one call and enforces the
// configured budget. Every iteration of every loop in the call counts,
// nested loops included.
//
// Each call has its own quota. A budget of zero or less disables the
// check.
type loopQuota struct {
	max     int
	current int
}

func newLoopQuota(max int) *loopQuota {
	return &loopQuota{max: max}
}

// Check increments the iteration counter and validates against the limit.
func (q *loopQuota) Check(function string) error {
	q.current++
	if q.max > 0 && q.current > q.max {
		return &LoopLimitError{
			Function:   function,
			Iterations: q.current,
			Limit:      q.max,
		}
	}
	return nil
}

// LoopLimitError is returned when a call exceeds the loop iteration budget.
//
// The call is abandoned. Feedback recorded for its arguments is kept.
type LoopLimitError struct {
	Function   string
	Iterations int
	Limit      int
}

// Error implements the error interface.
func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("function %s exceeded loop iteration limit: %d iterations > %d limit",
		e.Function, e.Iterations, e.Limit)
}

// RuntimeError converts the limit to its runtime error form.
func (e *LoopLimitError) RuntimeError() *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeLoopLimit,
		Message:  e.Error(),
		Function: e.Function,
		Details: map[string]string{
			"iterations": fmt.Sprintf("%d", e.Iterations),
			"limit":      fmt.Sprintf("%d", e.Limit),
		},
	}
}

// IsLoopLimitError returns true if the error is a LoopLimitError.
// Uses errors.As to handle wrapped errors.
func IsLoopLimitError(err error) bool {
	var le *LoopLimitError
	return errors.As(err, &le)
}
