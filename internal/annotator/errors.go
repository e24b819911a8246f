package annotator

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks a message that is not legal in the current state.
	// The message is dropped without a reply.
	ErrPrecondition = errors.New("annotator: precondition failed")

	ErrIndexOutOfRange   = fmt.Errorf("%w: defect index out of range", ErrPrecondition)
	ErrDegeneratePolygon = fmt.Errorf("%w: polygon needs at least three points", ErrPrecondition)
	ErrUnknownMessage    = errors.New("annotator: unknown message")
)

// CollaboratorError reports a failure of the face store or the segmenter.
// State is left as it was before the message.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("annotator: %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func collab(op string, err error) error {
	return &CollaboratorError{Op: op, Err: err}
}
