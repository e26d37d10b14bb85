package thread

import (
	"errors"
	"fmt"
)

var (
	ErrVersionMismatch = errors.New("thread built against a different kernel version")
	ErrDuplicateName   = errors.New("thread name already registered")
	ErrNotSubscribed   = errors.New("thread started before subscribing")
)

// StageError attributes a failure to the stage that raised it. The stage is
// held by name so the error outlives the thread that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Wrap attributes err to stage. It returns nil for a nil err and leaves an
// error that already names a stage alone.
func Wrap(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
