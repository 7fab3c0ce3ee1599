// Package errs defines the error taxonomy shared by the reconciliation engine.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies an engine error.
type Kind string

const (
	KindNotFound Kind = "not_found"
	KindIO       Kind = "io"
	KindConflict Kind = "conflict"
)

var (
	// ErrNotFound indicates a local path or remote key is absent when expected
	ErrNotFound = errors.New("not found")

	// ErrIO indicates a stream read/write or network failure
	ErrIO = errors.New("io failure")

	// ErrConflict indicates a file and a folder share a name on opposite sides
	ErrConflict = errors.New("type conflict")
)

// Error carries the failing operation and path along with the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrIO:
		return e.Kind == KindIO
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

func NotFound(op, path string, err error) *Error {
	if err == nil {
		err = ErrNotFound
	}
	return &Error{Kind: KindNotFound, Op: op, Path: path, Err: err}
}

func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func Conflict(op, path string, err error) *Error {
	if err == nil {
		err = ErrConflict
	}
	return &Error{Kind: KindConflict, Op: op, Path: path, Err: err}
}

// FromFS classifies a filesystem error. Missing paths become NotFound, anything else IO.
func FromFS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound(op, path, err)
	}
	return IO(op, path, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
