// Package core provides the business logic for combining delimited tables.
//
// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Codes are grouped by category:
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Conflicting options: remove-duplicates and merge-duplicates together
//	         Action: Choose either --remove-duplicates or --merge-duplicates
//	         Sentinel: ErrConflictingPolicies
//
//	CFG002 - No input: no input files were given
//	         Action: Pass at least one input file
//	         Sentinel: ErrNoInputs
//
//	CFG003 - Invalid delimiter: delimiter cannot separate fields
//	         Action: Use a single character other than a quote or line break
//	         Sentinel: ErrInvalidDelimiter
//
//	CFG004 - Duplicate key column: the key list names a column twice
//	         Action: List each key column once
//	         Sentinel: ErrDuplicateKeyColumn
//
//	CFG005 - Unknown duplicate mode
//	         Action: Use keep, remove or merge
//	         Sentinel: ErrUnknownPolicy
//
//	CFG006 - Output overwrites an input
//	         Action: Write the combined table to a different path
//	         Sentinel: ErrOutputIsInput
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File not found
//	          Action: Check the input path
//	          Sentinel: fs.ErrNotExist
//
//	FILE002 - Unterminated quoted field: a quote was opened and never closed
//	          Action: Check the file for a stray or missing double quote
//	          Sentinel: record.ErrUnexpectedEOF (with *record.ParseError)
//
//	FILE003 - Missing header: the file is empty
//	          Action: Every input needs a header line
//	          Sentinel: record.ErrUnexpectedEOF (without *record.ParseError)
//
//	FILE004 - Permission denied
//	          Action: Check file permissions
//	          Sentinel: fs.ErrPermission
//
// # I/O Errors (IO001-IO099)
//
//	IO001 - Read or write failure
//	        Action: Check disk space and that the files are accessible
//	        Patterns: "read", "write"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled        Sentinel: context.Canceled
//	REQ002 - Request timed out        Sentinel: context.DeadlineExceeded
//	REQ003 - Upload too large         Patterns: "request body too large"
//	REQ004 - Rate limited             Patterns: "rate limit"
//	REQ005 - Invalid limit            Patterns: "invalid limit"
//	REQ006 - Server busy              Patterns: "too many concurrent"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// # Matching
//
// Sentinels are checked first with errors.Is, in table order. Patterns are
// then matched case-insensitively with strings.Contains; the first match
// wins, so specific patterns come before general ones.
package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/JonMunkholm/csvcombine/internal/record"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorSentinel maps a sentinel error to its user message.
type errorSentinel struct {
	target error
	msg    UserMessage
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgUnterminatedQuote = UserMessage{
		Message: "A quoted field is never closed",
		Action:  "Check the file for a stray or missing double quote",
		Code:    "FILE002",
	}
	msgMissingHeader = UserMessage{
		Message: "An input file has no header line",
		Action:  "Every input file needs a header line naming its columns",
		Code:    "FILE003",
	}
)

var errorSentinels = []errorSentinel{
	{
		target: ErrConflictingPolicies,
		msg: UserMessage{
			Message: "Remove-duplicates and merge-duplicates cannot be used together",
			Action:  "Choose either --remove-duplicates or --merge-duplicates",
			Code:    "CFG001",
		},
	},
	{
		target: ErrNoInputs,
		msg: UserMessage{
			Message: "No input files were given",
			Action:  "Pass at least one input file",
			Code:    "CFG002",
		},
	},
	{
		target: ErrInvalidDelimiter,
		msg: UserMessage{
			Message: "The delimiter cannot separate fields",
			Action:  "Use a single character other than a double quote or line break",
			Code:    "CFG003",
		},
	},
	{
		target: ErrDuplicateKeyColumn,
		msg: UserMessage{
			Message: "A key column is listed more than once",
			Action:  "List each key column once",
			Code:    "CFG004",
		},
	},
	{
		target: ErrUnknownPolicy,
		msg: UserMessage{
			Message: "Unknown duplicate mode",
			Action:  "Use keep, remove or merge",
			Code:    "CFG005",
		},
	},
	{
		target: ErrOutputIsInput,
		msg: UserMessage{
			Message: "The output file is one of the inputs",
			Action:  "Write the combined table to a different path",
			Code:    "CFG006",
		},
	},
	{
		target: fs.ErrNotExist,
		msg: UserMessage{
			Message: "Input file not found",
			Action:  "Check the input path",
			Code:    "FILE001",
		},
	},
	{
		target: fs.ErrPermission,
		msg: UserMessage{
			Message: "Permission denied",
			Action:  "Check file permissions",
			Code:    "FILE004",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try smaller files or try again later",
			Code:    "REQ002",
		},
	},
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Upload exceeds the maximum size",
			Action:  "Combine fewer or smaller files per request",
			Code:    "REQ003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "REQ004",
		},
	},
	{
		pattern: "invalid limit",
		msg: UserMessage{
			Message: "Invalid limit",
			Action:  "Use a limit between 1 and 500",
			Code:    "REQ005",
		},
	},
	{
		pattern: "too many concurrent",
		msg: UserMessage{
			Message: "The server is busy with other combines",
			Action:  "Please try again in a few seconds",
			Code:    "REQ006",
		},
	},
	{
		pattern: "read",
		msg: UserMessage{
			Message: "Failed to read or write a file",
			Action:  "Check disk space and that the files are accessible",
			Code:    "IO001",
		},
	},
	{
		pattern: "write",
		msg: UserMessage{
			Message: "Failed to read or write a file",
			Action:  "Check disk space and that the files are accessible",
			Code:    "IO001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := core.Combine(ctx, opts, w)
//	msg := core.MapError(err)
//	// msg.Code == "FILE002" for an unterminated quote
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, record.ErrUnexpectedEOF) {
		var perr *record.ParseError
		if errors.As(err, &perr) {
			return msgUnterminatedQuote
		}
		return msgMissingHeader
	}

	for _, es := range errorSentinels {
		if errors.Is(err, es.target) {
			return es.msg
		}
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

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
