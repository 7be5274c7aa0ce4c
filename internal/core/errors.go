package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInputNotFound is returned when the input path does not exist.
	// It wraps fs.ErrNotExist so errors.Is(err, fs.ErrNotExist) also holds.
	ErrInputNotFound = errors.New("input file not found")

	// ErrNoPredicateColumn is returned when a filter column is missing from the requested headers.
	ErrNoPredicateColumn = errors.New("missing column in selection")

	// ErrRunNotFound is returned by Service.Get for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
)

// FormatError reports input that is not valid tab-separated text, or a header
// that lacks requested columns.
type FormatError struct {
	Line    int      // 1-based input line, 0 when not tied to a line
	Missing []string // requested columns absent from the input header
	Err     error
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		quoted := make([]string, len(e.Missing))
		for i, m := range e.Missing {
			quoted[i] = strconv.Quote(m)
		}
		return "missing column in input header: " + strings.Join(quoted, ", ")
	}
	if e.Line > 0 {
		return fmt.Sprintf("invalid delimited text at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid delimited text: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// EncodingError reports input bytes that are not valid UTF-8.
type EncodingError struct {
	Offset int64 // byte offset of the first invalid sequence
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: invalid UTF-8 at byte %d", e.Offset)
}

// CoercionError reports a field that does not fit its column's type.
type CoercionError struct {
	Line   int
	Column string
	Value  string
	Type   FieldType
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %q in column %q at line %d to %s", e.Value, e.Column, e.Line, e.Type)
}

// OutputError reports an output path that could not be written.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output not writable: %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }
