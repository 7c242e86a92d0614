// Package errs implements the Fatal/Warnable/Propagated error model.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the error-handling design distinguishes
// failures that should abort the process from ones that should skip a
// single record.
type Kind int

const (
	// Fatal errors abort the current pipeline stage after logging.
	Fatal Kind = iota
	// Warnable errors are counted and the offending record is skipped.
	Warnable
	// Propagated errors surface to the caller as a structured value
	// (geocoder load failures).
	Propagated
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Warnable:
		return "warnable"
	case Propagated:
		return "propagated"
	default:
		return "unknown"
	}
}

// Error wraps an origin error with a kind and a sentinel code, mirroring
// the orig/code/msg shape used throughout this codebase's lower layers.
type Error struct {
	orig error
	code error
	kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.orig != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.orig)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.orig }

func (e *Error) Code() error { return e.code }

func (e *Error) Kind() Kind { return e.kind }

// Wrap builds a new *Error with an explicit kind, code and formatted message.
func Wrap(kind Kind, orig error, code error, format string, a ...interface{}) error {
	return &Error{
		kind: kind,
		code: code,
		orig: orig,
		msg:  fmt.Sprintf(format, a...),
	}
}

// Fatalf is shorthand for Wrap(Fatal, ...).
func Fatalf(orig error, code error, format string, a ...interface{}) error {
	return Wrap(Fatal, orig, code, format, a...)
}

// Warnf is shorthand for Wrap(Warnable, ...).
func Warnf(orig error, code error, format string, a ...interface{}) error {
	return Wrap(Warnable, orig, code, format, a...)
}

// IsKind reports whether err (or any error it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

var (
	ErrIO                 = errors.New("io failure")
	ErrBadFormat          = errors.New("bad format")
	ErrInconsistent       = errors.New("inconsistent data")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrNotFound           = errors.New("not found")
	ErrBadParamInput      = errors.New("given param is not valid")
)

// LoadErrorKind enumerates the geocoder's propagated load failure kinds.
type LoadErrorKind int

const (
	OpenException LoadErrorKind = iota
	NoVersion
	IndexVersionMismatch
	GenericException
)

func (k LoadErrorKind) String() string {
	switch k {
	case OpenException:
		return "OpenException"
	case NoVersion:
		return "NoVersion"
	case IndexVersionMismatch:
		return "IndexVersionMismatch"
	default:
		return "Exception"
	}
}

// LoadError is the structured error the forward geocoder returns when it
// fails to load its on-disk artifacts.
type LoadError struct {
	Kind LoadErrorKind
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// ParsingStats counts Warnable failures across a batch so they can be
// logged once instead of once per record.
type ParsingStats struct {
	MissingWay      int
	MissingRegion   int
	BadGeometry     int
	MalformedJSONL  int
	DuplicateOSMID  int
	SkippedFeatures int
}

func (s *ParsingStats) Total() int {
	return s.MissingWay + s.MissingRegion + s.BadGeometry +
		s.MalformedJSONL + s.DuplicateOSMID + s.SkippedFeatures
}
