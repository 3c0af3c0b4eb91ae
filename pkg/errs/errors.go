package errs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrValidation marks a malformed request (e.g. a relative URL).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a job that is missing at transition time.
	ErrNotFound = errors.New("not found")

	// ErrTransition marks a status write that would leave a terminal state
	// or skip an edge of the job state machine.
	ErrTransition = errors.New("illegal status transition")

	// ErrFetch marks a network failure or non-200 response in the fetch stage.
	ErrFetch = errors.New("fetch failed")

	// ErrEmptyContent marks a page that yielded no usable text.
	ErrEmptyContent = errors.New("no text content")

	// ErrExtraction marks a failure while parsing or cleaning raw content.
	ErrExtraction = errors.New("content extraction failed")

	// ErrStorage marks a job store or knowledge store write failure.
	ErrStorage = errors.New("storage failed")

	// ErrQueueFull marks an enqueue attempt against a saturated task queue.
	ErrQueueFull = errors.New("task queue full")
)

// Conflict is returned when a URL has already been submitted. It carries
// the existing job so callers can surface its id and current status.
type Conflict struct {
	JobID  uuid.UUID
	Status string
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("url already submitted: job %s (%s)", c.JobID, c.Status)
}

// AsConflict unwraps err into a *Conflict if one is in the chain.
func AsConflict(err error) (*Conflict, bool) {
	var c *Conflict
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
