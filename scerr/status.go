// Package scerr defines the status codes exchanged between the aggregators,
// the client facade, and the caller. It mirrors the handful of
// google.golang.org/grpc/codes values the original client actually uses
// (OK, InvalidArgument, NotFound, OutOfRange, Internal, Unavailable)
// rather than pulling in the full gRPC status package for six constants.
package scerr

import "fmt"

// Code is a coarse status code, modeled on the subset of
// google.protobuf.util.Status codes the original client depends on.
type Code int

const (
	OK Code = iota
	InvalidArgument
	NotFound
	OutOfRange
	Internal
	Unavailable
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case OutOfRange:
		return "OutOfRange"
	case Internal:
		return "Internal"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Status is a code plus a human-readable message. It implements error so
// callers can match on code via scerr.CodeOf(err) without type-asserting.
type Status struct {
	Code    Code
	Message string
}

func (s *Status) Error() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// New builds a Status error. A nil *Status with Code OK is never returned by
// New; use Ok() for the success sentinel so callers can compare against a
// single value.
func New(code Code, format string, args ...interface{}) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Ok returns the canonical success status.
func Ok() *Status {
	return &Status{Code: OK}
}

// IsOK reports whether s represents success. A nil Status is treated as OK
// so callers that only check failures don't need a separate nil check.
func (s *Status) IsOK() bool {
	return s == nil || s.Code == OK
}

// CodeOf extracts the Code from an error, defaulting to Internal for errors
// that did not originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if st, ok := err.(*Status); ok {
		return st.Code
	}
	return Internal
}
