// Package errs defines the typed error kinds shared by every layer of the
// mesh control plane. Handlers in internal/registryapi map a Kind to an HTTP
// status; the CLI maps a Kind to an exit code and a one-line message. Callers
// should use errors.As to recover a *Error from a wrapped error chain.
package errs

import "fmt"

// Kind is a closed set of error categories. New call sites should reuse one
// of these rather than returning a bare error, so that callers across
// process boundaries (HTTP, CLI) can react consistently.
type Kind string

const (
	InvalidInput        Kind = "InvalidInput"
	NotFound             Kind = "NotFound"
	SecurityValidation   Kind = "SecurityValidation"
	StoreFailure         Kind = "StoreFailure"
	StartupFailure       Kind = "StartupFailure"
	TerminationFailure   Kind = "TerminationFailure"
	RegistryConnection   Kind = "RegistryConnection"
	RegistryTimeout      Kind = "RegistryTimeout"
	DependencyResolution Kind = "DependencyResolution"
	Cancelled            Kind = "Cancelled"
)

// Error is the concrete error type carried through the system. Component
// names the subsystem that raised it (e.g. "Registry", "ProcessTracker"),
// Target names the affected agent/capability/process, and Err is the
// optional underlying cause.
type Error struct {
	Kind      Kind
	Component string
	Target    string
	Err       error
}

func (e *Error) Error() string {
	if e.Target == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Component, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %q: %v", e.Component, e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %s %q", e.Component, e.Kind, e.Target)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, component, target string) *Error {
	return &Error{Kind: kind, Component: component, Target: target}
}

// Wrap builds an *Error around an existing error.
func Wrap(kind Kind, component, target string, err error) *Error {
	return &Error{Kind: kind, Component: component, Target: target, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
// Unrecognized errors are reported as StoreFailure, the conservative default
// for "something went wrong downstream that we didn't expect."
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return StoreFailure
}

// as is a tiny indirection over errors.As kept local so this package has no
// import beyond fmt/errors.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
