package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies one CLI invocation in the log. Every log line of the
// invocation carries its ID.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success", "aborted" or "error"
	StartedAt  time.Time
}

// NewOperation creates an operation with a fresh random ID.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		ID:         uuid.NewString(),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		StartedAt:  time.Now(),
	}
}

// Fail marks the operation as failed when err is non-nil. It returns err
// unchanged.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed returns true if the operation recorded an error.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
