// Package hfserr defines the error taxonomy shared by every layer of the
// HFS+ volume driver.
package hfserr

import "fmt"

// Kind classifies a driver error the way the FUSE bridge would need to map
// it to a POSIX errno.
type Kind int

const (
	// Io is a device read failure or a short read.
	Io Kind = iota
	// NotHfs means the volume signature did not match H+, HX, or a
	// recognized HFS wrapper.
	NotHfs
	// Corrupt means a structural on-disk invariant was violated.
	Corrupt
	// NotFound means a catalog key was absent.
	NotFound
	// NotADirectory means an intermediate path element was not a folder.
	NotADirectory
	// InvalidName means a name could not be decoded (unpaired surrogate).
	InvalidName
	// ReadOnly means the caller requested a mutation.
	ReadOnly
	// NoMemory means an allocation failed.
	NoMemory
	// Truncated means a decode read past the end of an on-disk buffer.
	Truncated
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case NotHfs:
		return "not hfs+"
	case Corrupt:
		return "corrupt"
	case NotFound:
		return "not found"
	case NotADirectory:
		return "not a directory"
	case InvalidName:
		return "invalid name"
	case ReadOnly:
		return "read only"
	case NoMemory:
		return "no memory"
	case Truncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with the operation and path it applies to, following
// the fs.PathError shape used throughout the teacher repository.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/path with no wrapped cause.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap builds an *Error for op/path around a lower-level cause.
func Wrap(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
