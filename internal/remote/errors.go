package remote

import (
	"errors"
	"fmt"
)

// ErrCredentials is returned at connection-open time when no usable
// authentication method is configured for a host, or the chosen
// transport strategy cannot support the configured method.
var ErrCredentials = errors.New("no usable SSH credentials configured")

// ExitError reports a nonzero exit status from a remote command.
type ExitError struct {
	Argv string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command %q exited with code %d", e.Argv, e.Code)
}

// IOError reports a failed remote file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("remote %s %s failed", e.Op, e.Path)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErrorf(op, path, format string, args ...any) *IOError {
	return &IOError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}
