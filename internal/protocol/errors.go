package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLine marks a header line without a KEY: VALUE separator.
	ErrMalformedLine = errors.New("malformed line")
	// ErrMissingField marks a message lacking a field required for dispatch.
	ErrMissingField = errors.New("missing field")
)

// ParseError describes why a raw message could not be decoded.
type ParseError struct {
	Line  int    // 1-based line number, 0 when not tied to a line
	Text  string // offending line
	Field string // missing field name
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("parse message: %v: %s", e.Err, e.Field)
	case e.Line > 0:
		return fmt.Sprintf("parse message: line %d: %v: %q", e.Line, e.Err, e.Text)
	default:
		return fmt.Sprintf("parse message: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
