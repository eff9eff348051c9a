package dataset

import (
	"errors"
	"fmt"
)

// Error kinds for errors.Is matching. Each typed error below reports one of these.
var (
	ErrFileAccess = errors.New("file access error")
	ErrParse      = errors.New("parse error")
	ErrSchema     = errors.New("schema error")
	ErrState      = errors.New("state error")
)

// FileAccessError indicates the source path does not resolve to a readable file.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("cannot read dataset %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

func (e *FileAccessError) Is(target error) bool { return target == ErrFileAccess }

// ParseError indicates the source is not well-formed delimited text.
// Line is 1-based and zero when unknown.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// SchemaError indicates an expected column is absent or has the wrong type.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: column %q %s", e.Column, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// StateError indicates an operation was invoked out of order.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *StateError) Is(target error) bool { return target == ErrState }
