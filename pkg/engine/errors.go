package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine error for propagation policy.
type ErrorKind string

const (
	// KindSoftFailure is a legacy plugin body failure. It is logged and
	// absorbed; the plugin is marked failed.
	KindSoftFailure ErrorKind = "soft_failure"

	// KindDependencyCycle means a plugin was reached again while its own
	// resolution was still pending. Fatal.
	KindDependencyCycle ErrorKind = "dependency_cycle"

	// KindMissingAttribute means a declared dependency has no producer. Fatal.
	KindMissingAttribute ErrorKind = "missing_attribute"

	// KindDiscoveryMiss means a plugin named on demand was not found under
	// any plugin root.
	KindDiscoveryMiss ErrorKind = "discovery_miss"

	// KindInvalidArgument is returned to the immediate caller for a path
	// that does not resolve.
	KindInvalidArgument ErrorKind = "invalid_argument"

	// KindUnsupportedType is returned when a value cannot be serialized.
	KindUnsupportedType ErrorKind = "unsupported_type"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Plugin is the identifier of the plugin involved, if any.
	Plugin string `json:"plugin,omitempty"`

	// Path is the attribute path involved, if any.
	Path string `json:"path,omitempty"`

	// Cycle lists the plugins forming a dependency cycle.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))
	if e.Plugin != "" {
		sb.WriteString(fmt.Sprintf(" (plugin=%s)", e.Plugin))
	}
	if msg := e.unwrapMessage(); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is. Two engine errors
// match when their kinds match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Fatal reports whether the error must propagate unmodified to the top.
func (e *EngineError) Fatal() bool {
	return e.Kind == KindDependencyCycle || e.Kind == KindMissingAttribute
}

// Sentinels for errors.Is.
var (
	ErrDependencyCycle  = &EngineError{Kind: KindDependencyCycle}
	ErrMissingAttribute = &EngineError{Kind: KindMissingAttribute}
	ErrInvalidArgument  = &EngineError{Kind: KindInvalidArgument}
	ErrUnsupportedType  = &EngineError{Kind: KindUnsupportedType}
)

// NewDependencyCycleError creates a cycle error for the given plugin chain.
// The chain starts and ends with the re-entered plugin.
func NewDependencyCycleError(cycle []string) *EngineError {
	name := ""
	if len(cycle) > 0 {
		name = cycle[0]
	}
	return &EngineError{
		Kind:    KindDependencyCycle,
		Message: fmt.Sprintf("dependency cycle detected: %s", formatCycle(cycle)),
		Plugin:  name,
		Cycle:   cycle,
	}
}

// NewMissingAttributeError creates an error for a dependency nobody provides.
func NewMissingAttributeError(pluginName, attribute string) *EngineError {
	return &EngineError{
		Kind:    KindMissingAttribute,
		Message: fmt.Sprintf("no plugin provides attribute %q", attribute),
		Plugin:  pluginName,
		Path:    attribute,
	}
}

// NewSoftFailure wraps a plugin body failure.
func NewSoftFailure(pluginName string, err error) *EngineError {
	return &EngineError{
		Kind:    KindSoftFailure,
		Message: "plugin failed",
		Plugin:  pluginName,
		Err:     err,
	}
}

// NewDiscoveryMissError reports a plugin name that matched no source file.
func NewDiscoveryMissError(pluginName string, roots []string) *EngineError {
	return &EngineError{
		Kind:    KindDiscoveryMiss,
		Message: fmt.Sprintf("no plugin found in %v", roots),
		Plugin:  pluginName,
	}
}

// NewInvalidArgumentError reports an attribute path that does not resolve.
func NewInvalidArgumentError(path string) *EngineError {
	return &EngineError{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("cannot find an attribute named %s", path),
		Path:    path,
	}
}

// NewUnsupportedTypeError reports a value the serializer cannot render.
func NewUnsupportedTypeError(path string, value any) *EngineError {
	return &EngineError{
		Kind:    KindUnsupportedType,
		Message: fmt.Sprintf("can only serialize mappings, sequences, numbers and text, got %T", value),
		Path:    path,
	}
}

// AsFatal extracts a fatal engine error from err's chain. The returned value
// is the original error, not a copy, so it can be re-raised unmodified.
func AsFatal(err error) (*EngineError, bool) {
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*EngineError); ok && e.Fatal() {
			return e, true
		}
	}
	return nil, false
}

// IsFatal reports whether err carries a fatal engine error.
func IsFatal(err error) bool {
	_, ok := AsFatal(err)
	return ok
}

// IsDependencyCycle reports whether err is a dependency cycle.
func IsDependencyCycle(err error) bool {
	return errors.Is(err, ErrDependencyCycle)
}

// IsMissingAttribute reports whether err is a missing attribute failure.
func IsMissingAttribute(err error) bool {
	return errors.Is(err, ErrMissingAttribute)
}

// IsInvalidArgument reports whether err is an invalid argument failure.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsUnsupportedType reports whether err is an unsupported type failure.
func IsUnsupportedType(err error) bool {
	return errors.Is(err, ErrUnsupportedType)
}

// isInterrupt reports whether err stems from context cancellation, the
// in-process form of an operator interrupt. Interrupts bypass soft-catch.
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// kindOf returns the kind of an engine error, or "" for other errors.
func kindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
