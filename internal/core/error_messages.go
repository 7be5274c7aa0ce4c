package core

// error_messages.go maps pipeline errors to user-facing messages with codes.
//
// # Error Codes Reference
//
// When a run fails, the CLI and the HTTP API show a short message, an action
// and a code. Operators can quote the code when reporting a problem.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Input not found: The input file does not exist
//	          Action: Check INPUT_PATH or the -input flag
//	          Patterns: "input file not found"
//
//	FILE002 - Invalid delimited text: The input is not valid tab-separated text
//	          Action: Check the reported line for stray quotes or extra tabs
//	          Patterns: "invalid delimited text"
//
//	FILE003 - Encoding error: The input is not valid UTF-8
//	          Action: Re-export the file as UTF-8
//	          Patterns: "encoding error"
//
//	FILE004 - Missing column: A requested column is not in the input header
//	          Action: Compare the profile headers with the input header row
//	          Patterns: "missing column"
//
// # Type Errors (TYPE001-TYPE099)
//
//	TYPE001 - Coercion failed: A value does not match its column type
//	          Action: Add the column to text_columns in the profile
//	          Patterns: "cannot coerce"
//
// # Output Errors (OUT001-OUT099)
//
//	OUT001 - Output not writable: The output file could not be written
//	         Action: Check OUTPUT_PATH and directory permissions
//	         Patterns: "output not writable"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection failed: Unable to connect to the database
//	        Action: Check DATABASE_URL and that Postgres is reachable
//	        Patterns: "connect to database", "connection refused"
//
//	DB002 - Copy failed: Rows could not be loaded into the table
//	        Action: Check the table definition and database logs
//	        Patterns: "copy into"
//
// # Storage Errors (S3001-S3099)
//
//	S3001 - Publish failed: The output could not be uploaded
//	        Action: Check the S3 endpoint, bucket and credentials
//	        Patterns: "publish output"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: Another run is in progress
//	         Action: Wait for the current run to finish and try again
//	         Patterns: "too many concurrent runs"
//
//	RUN002 - Cancelled: The run was cancelled
//	         Action: Start a new run when ready
//	         Patterns: "context canceled"
//
//	RUN003 - Timed out: The run exceeded RUN_TIMEOUT
//	         Action: Increase RUN_TIMEOUT or reduce the input size
//	         Patterns: "context deadline exceeded"
//
//	RUN004 - Run not found: No run with this ID is known
//	         Action: List runs to find a valid ID
//	         Patterns: "run not found"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid configuration
//	         Action: Fix the reported settings and restart
//	         Patterns: "config load", "config validation", "profile"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the logs for the technical cause
//
// Typed errors are matched first with errors.Is and errors.As, so text inside
// an error (a cell value, a path) cannot change its code. Anything else is
// matched against the patterns case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "input file not found",
		msg: UserMessage{
			Message: "The input file does not exist",
			Action:  "Check INPUT_PATH or the -input flag",
			Code:    "FILE001",
		},
	},
	{
		pattern: "missing column",
		msg: UserMessage{
			Message: "A requested column is not in the input header",
			Action:  "Compare the profile headers with the input header row",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid delimited text",
		msg: UserMessage{
			Message: "The input is not valid tab-separated text",
			Action:  "Check the reported line for stray quotes or extra tabs",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "The input is not valid UTF-8",
			Action:  "Re-export the file as UTF-8",
			Code:    "FILE003",
		},
	},

	// Type errors
	{
		pattern: "cannot coerce",
		msg: UserMessage{
			Message: "A value does not match its column type",
			Action:  "Add the column to text_columns in the profile",
			Code:    "TYPE001",
		},
	},

	// Output errors
	{
		pattern: "output not writable",
		msg: UserMessage{
			Message: "The output file could not be written",
			Action:  "Check OUTPUT_PATH and directory permissions",
			Code:    "OUT001",
		},
	},

	// Database errors
	{
		pattern: "connect to database",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Check DATABASE_URL and that Postgres is reachable",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Check DATABASE_URL and that Postgres is reachable",
			Code:    "DB001",
		},
	},
	{
		pattern: "copy into",
		msg: UserMessage{
			Message: "Rows could not be loaded into the table",
			Action:  "Check the table definition and database logs",
			Code:    "DB002",
		},
	},

	// Storage errors
	{
		pattern: "publish output",
		msg: UserMessage{
			Message: "The output could not be uploaded",
			Action:  "Check the S3 endpoint, bucket and credentials",
			Code:    "S3001",
		},
	},

	// Run errors
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "Another run is in progress",
			Action:  "Wait for the current run to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Increase RUN_TIMEOUT or reduce the input size",
			Code:    "RUN003",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "No run with this ID is known",
			Action:  "List runs to find a valid ID",
			Code:    "RUN004",
		},
	},

	// Configuration errors
	{
		pattern: "config load",
		msg: UserMessage{
			Message: "Invalid configuration",
			Action:  "Fix the reported settings and restart",
			Code:    "CFG001",
		},
	},
	{
		pattern: "config validation",
		msg: UserMessage{
			Message: "Invalid configuration",
			Action:  "Fix the reported settings and restart",
			Code:    "CFG001",
		},
	},
	{
		pattern: "profile",
		msg: UserMessage{
			Message: "Invalid filter profile",
			Action:  "Fix the profile file and restart",
			Code:    "CFG001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical cause",
	Code:    "ERR000",
}

// messageFor returns the table entry for code.
func messageFor(code string) UserMessage {
	for _, ep := range errorPatterns {
		if ep.msg.Code == code {
			return ep.msg
		}
	}
	return defaultMessage
}

// typedCode returns the code of a known error type or sentinel in err's chain.
func typedCode(err error) string {
	var (
		fe *FormatError
		ee *EncodingError
		ce *CoercionError
		oe *OutputError
	)
	switch {
	case errors.As(err, &ce):
		return "TYPE001"
	case errors.As(err, &ee):
		return "FILE003"
	case errors.As(err, &fe):
		if len(fe.Missing) > 0 {
			return "FILE004"
		}
		return "FILE002"
	case errors.As(err, &oe):
		return "OUT001"
	case errors.Is(err, ErrInputNotFound):
		return "FILE001"
	case errors.Is(err, ErrNoPredicateColumn):
		return "FILE004"
	case errors.Is(err, ErrTooManyRuns):
		return "RUN001"
	case errors.Is(err, ErrRunNotFound):
		return "RUN004"
	case errors.Is(err, context.Canceled):
		return "RUN002"
	case errors.Is(err, context.DeadlineExceeded):
		return "RUN003"
	}
	return ""
}

// MapError converts a technical error to a user-friendly message.
// Known error types decide first; otherwise it returns the first matching
// pattern, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if code := typedCode(err); code != "" {
		return messageFor(code)
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
// Error returns the user message; Unwrap returns the technical error.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
