// Package epperr provides the typed error layer for flow logic.
//
// Every failure a registrar can observe carries an EPP result code and a
// stable human-readable message. Flows construct these directly with New, or
// translate infrastructure sentinels (see pkg/platform/sentinel) with Wrap.
// The transport layer renders the code and message verbatim into the EPP
// response; registrar client software is known to pattern-match on message
// text, so messages for a given failure must not change between releases.
package epperr

import (
	"errors"
	"fmt"
)

// Code is an EPP result code as defined by RFC 5730 section 3.
type Code int

const (
	CodeSuccess              Code = 1000
	CodeSuccessActionPending Code = 1001
	CodeSuccessNoMessages    Code = 1300
	CodeSuccessAckToDequeue  Code = 1301
	CodeSuccessEndingSession Code = 1500

	CodeUnknownCommand            Code = 2000
	CodeSyntaxError               Code = 2001
	CodeCommandUseError           Code = 2002
	CodeRequiredParameterMissing  Code = 2003
	CodeParameterValueRangeError  Code = 2004
	CodeParameterValueSyntaxError Code = 2005
	CodeUnimplementedCommand      Code = 2101
	CodeUnimplementedOption       Code = 2102
	CodeNotEligibleForRenewal     Code = 2105
	CodeNotEligibleForTransfer    Code = 2106
	CodeAuthenticationError       Code = 2200
	CodeAuthorizationError        Code = 2201
	CodeInvalidAuthInfo           Code = 2202
	CodeObjectPendingTransfer     Code = 2300
	CodeObjectNotPendingTransfer  Code = 2301
	CodeObjectExists              Code = 2302
	CodeObjectDoesNotExist        Code = 2303
	CodeStatusProhibitsOperation  Code = 2304
	CodeAssociationProhibitsOp    Code = 2305
	CodeParameterValuePolicyError Code = 2306
	CodeDataManagementViolation   Code = 2308
	CodeCommandFailed             Code = 2400
)

// IsSuccess reports whether the code is in the 1xxx success family.
func (c Code) IsSuccess() bool { return c >= 1000 && c < 2000 }

// Error is a failure with an EPP result code and a stable client-facing
// message. It may wrap an underlying infrastructure error for logging; the
// wrapped detail is never rendered to the client.
type Error struct {
	code Code
	msg  string
	err  error
}

// New creates a coded error with a stable message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf creates a coded error with a formatted message. The format string
// must be stable; only resource identifiers should be interpolated.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and client-facing message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s (%d): %v", e.msg, e.code, e.err)
	}
	return fmt.Sprintf("%s (%d)", e.msg, e.code)
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the EPP result code.
func (e *Error) Code() Code { return e.code }

// Message returns the client-facing message without the code or wrapped
// detail.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether err carries the given EPP result code anywhere in
// its chain.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code == code
	}
	return false
}

// CodeOf extracts the EPP result code from an error chain, falling back to
// CodeCommandFailed for errors that carry no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return CodeCommandFailed
}

// MessageOf extracts the client-facing message from an error chain, falling
// back to a generic message so internal detail never leaks to registrars.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.msg
	}
	return "Command failed"
}
