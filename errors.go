package groupby

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Sentinel errors
var (
	// ErrNoGroup is returned when a group is looked up by a key that
	// does not exist. Callers can tell "no group" apart from "empty
	// group" by checking for it with errors.Is.
	ErrNoGroup = errors.New("no such group")

	// ErrNoField is returned when a GroupBySource field is accessed
	// that the config never declared.
	ErrNoField = errors.New("no such field")

	// ErrWatcherExists is returned when a watcher is registered for an
	// attribute and root pair that already has one.
	ErrWatcherExists = errors.New("watcher already registered")

	// ErrNotFound is returned when a path resolves to no group and no
	// pagination page.
	ErrNotFound = errors.New("path does not resolve")

	// ErrBadPage is returned for pagination page numbers outside
	// [1, NumPages] or on groups without pagination.
	ErrBadPage = errors.New("page out of range")
)

// ConfigError collects every problem found while validating a watcher
// configuration. Nothing of a bad configuration is applied.
type ConfigError struct {
	Attribute string
	Errors    []error
}

// Error implements the error interface.
func (ce *ConfigError) Error() string {
	if len(ce.Errors) == 0 {
		return fmt.Sprintf("invalid config for %q", ce.Attribute)
	}
	if len(ce.Errors) == 1 {
		return fmt.Sprintf("invalid config for %q: %v", ce.Attribute, ce.Errors[0])
	}

	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("invalid config for %q with %d errors:\n", ce.Attribute, len(ce.Errors)))
	for i, err := range ce.Errors {
		fmt.Fprintf(&buf, "  %d. %v\n", i+1, err)
	}
	return buf.String()
}

// Unwrap returns the underlying errors for use with errors.Is and
// errors.As. This implements the multi-error unwrap interface
// introduced in Go 1.20.
func (ce *ConfigError) Unwrap() []error {
	return ce.Errors
}

// newConfigError creates a ConfigError from a slice of errors.
// Returns nil if the slice is empty.
func newConfigError(attribute string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Attribute: attribute, Errors: errs}
}

// CallbackError reports a grouping callback failure. The build of the
// affected watcher is aborted atomically; other watchers are not
// touched.
type CallbackError struct {
	Attribute string
	Root      string
	Record    string // record path being scanned when the callback failed
	Err       error
}

// Error implements the error interface.
func (ce *CallbackError) Error() string {
	return fmt.Sprintf("grouping callback for %q failed at %s: %v", ce.Attribute, ce.Record, ce.Err)
}

// Unwrap returns the callback's error.
func (ce *CallbackError) Unwrap() error {
	return ce.Err
}

// InvalidYieldError reports a raw key object of a type the key
// resolver cannot turn into a string key.
type InvalidYieldError struct {
	Value any
}

// Error implements the error interface.
func (ie *InvalidYieldError) Error() string {
	return fmt.Sprintf("cannot derive a group key from %T value %s",
		ie.Value, strings.TrimSuffix(spew.Sdump(ie.Value), "\n"))
}
