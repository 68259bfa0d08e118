// Package errs defines the error taxonomy shared by the contract, component,
// registry and system packages.
//
// Errors fall into two families that callers must not confuse:
//
//   - Fatal errors (Contract, Config) describe a defect in interface
//     declarations, implementations or configuration. They are raised while
//     loading and abort start-up; nothing retries them.
//   - Recoverable errors (Lookup, TypeMismatch) are returned to application
//     code during normal operation, which decides how to degrade.
//
// Every error produced here unwraps to one of the sentinel values below, so
// errors.Is works across package boundaries.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Class classifies an error for handling purposes.
type Class int

const (
	// Contract marks malformed interface or method declarations, shape
	// mismatches, duplicate ids and kvp collisions.
	Contract Class = iota
	// Config marks missing or invalid configuration feeding discovery or
	// validation.
	Config
	// Lookup marks recoverable resolution failures.
	Lookup
	// TypeMismatch marks argument or return values violating a contract at
	// call time.
	TypeMismatch
	// Internal marks a failure observed by a caller that did not drive it,
	// e.g. a goroutine waiting on a configuration load that failed.
	Internal
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case Contract:
		return "contract"
	case Config:
		return "config"
	case Lookup:
		return "lookup"
	case TypeMismatch:
		return "type-mismatch"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Sentinel errors. Use errors.Is against these.
var (
	ErrContract                = errors.New("contract violation")
	ErrConfig                  = errors.New("invalid configuration")
	ErrImplementationNotFound  = errors.New("implementation not found")
	ErrImplementationDisabled  = errors.New("implementation disabled")
	ErrImplementationAmbiguous = errors.New("implementation ambiguous")
	ErrBindingMethod           = errors.New("binding method not supported by this lookup")
	ErrUnknownMethod           = errors.New("method not declared by interface")
	ErrTypeMismatch            = errors.New("type mismatch")
	ErrInternal                = errors.New("internal error")
)

// Error is a classified error carrying the operation and subject it relates
// to. Details holds one line per individual problem for aggregated reports.
type Error struct {
	Class   Class
	Op      string
	Subject string
	Msg     string
	Details []string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Subject != "" {
		fmt.Fprintf(&b, "%q: ", e.Subject)
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Class.String() + " error")
	}
	for _, d := range e.Details {
		b.WriteString("\n- ")
		b.WriteString(d)
	}
	return b.String()
}

// Unwrap returns the underlying sentinel or cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewContract returns a Contract error.
func NewContract(op, subject, format string, args ...any) error {
	return &Error{Class: Contract, Op: op, Subject: subject, Msg: fmt.Sprintf(format, args...), Err: ErrContract}
}

// NewConfig returns a Config error.
func NewConfig(op, subject, format string, args ...any) error {
	return &Error{Class: Config, Op: op, Subject: subject, Msg: fmt.Sprintf(format, args...), Err: ErrConfig}
}

// NewLookup returns a Lookup error wrapping one of the lookup sentinels.
func NewLookup(sentinel error, op, subject string) error {
	return &Error{Class: Lookup, Op: op, Subject: subject, Err: sentinel}
}

// NewLookupf is NewLookup with a message naming what was looked for.
func NewLookupf(sentinel error, op, subject, format string, args ...any) error {
	return &Error{Class: Lookup, Op: op, Subject: subject, Msg: sentinel.Error() + ": " + fmt.Sprintf(format, args...), Err: sentinel}
}

// NewTypeMismatch returns a TypeMismatch error listing every mismatch.
func NewTypeMismatch(op, subject string, mismatches []string) error {
	return &Error{Class: TypeMismatch, Op: op, Subject: subject, Msg: "type mismatch", Details: mismatches, Err: ErrTypeMismatch}
}

// NewInternal returns an Internal error wrapping cause.
func NewInternal(op string, cause error) error {
	msg := "internal error"
	if cause != nil {
		msg = "internal error: " + cause.Error()
	}
	return &Error{Class: Internal, Op: op, Msg: msg, Err: errors.Join(ErrInternal, cause)}
}

// Aggregate folds the given problems into a single error of class c, one
// problem per line. It returns nil when problems is empty.
func Aggregate(c Class, op, headline string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	sentinel := ErrConfig
	if c == Contract {
		sentinel = ErrContract
	}
	return &Error{Class: c, Op: op, Msg: headline, Details: problems, Err: sentinel}
}

// ClassOf reports the class of err if it carries one.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return 0, false
}

// IsFatal reports whether err is a contract or configuration defect.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := ClassOf(err); ok {
		return c == Contract || c == Config
	}
	return errors.Is(err, ErrContract) || errors.Is(err, ErrConfig)
}

// IsLookup reports whether err is a recoverable lookup failure.
func IsLookup(err error) bool {
	if c, ok := ClassOf(err); ok {
		return c == Lookup
	}
	return errors.Is(err, ErrImplementationNotFound) ||
		errors.Is(err, ErrImplementationDisabled) ||
		errors.Is(err, ErrImplementationAmbiguous) ||
		errors.Is(err, ErrBindingMethod) ||
		errors.Is(err, ErrUnknownMethod)
}

// Wrap adds context following the "component.method: action failed: %w"
// pattern. It returns nil for a nil err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}
