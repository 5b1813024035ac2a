package session

import (
	"errors"
	"fmt"
)

var (
	ErrLaunch   = errors.New("launch failed")
	ErrRegister = errors.New("could not register session")
)

// IOError wraps a failed filesystem or OS operation.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
