package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrDuplicateID = errors.New("job id already exists")
)

// InvalidStateError is returned when an operation is not allowed from the
// job's current status.
type InvalidStateError struct {
	ID     string
	Status Status
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in status %s", e.Op, e.ID, e.Status)
}

// ValidationError describes a rejected create request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
