package task

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
)

var (
	ErrNotFound     = core.ErrNotFound
	ErrAccessDenied = core.ErrAccessDenied

	ErrNotAssigned         = errors.New("task is not assigned to this student")
	ErrDuplicateSubmission = errors.New("task already submitted")
	ErrEmptySubmission     = errors.New("submission must contain text or a file")
	ErrEmptyAudience       = errors.New("no approved student to assign the task to")
)

// LockedError is returned when submitting a task the progression does not unlock yet.
type LockedError struct {
	Reason string
}

func (e *LockedError) Error() string { return "task locked: " + e.Reason }

// OutOfRangeError is returned when grading marks fall outside [0, Max].
type OutOfRangeError struct {
	Max float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("marks must be between 0 and %s", formatMarks(e.Max))
}

func IsLocked(err error) (*LockedError, bool) {
	e, ok := errors.Cause(err).(*LockedError)
	return e, ok
}

func formatMarks(m float64) string {
	return fmt.Sprintf("%g", m)
}
