// Package pluginerr defines the error taxonomy surfaced by the resolver and
// lifecycle driver: a small set of named codes, each carrying the plugin
// identity and operation that failed, wrapping an underlying cause where one
// exists.
package pluginerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes a PluginError for callers that want to switch on kind
// rather than match message text.
type Code string

const (
	CodeDuplicateID          Code = "DUPLICATE_ID"
	CodeInvalidDescriptor    Code = "INVALID_DESCRIPTOR"
	CodeUnlinkable           Code = "UNLINKABLE"
	CodeUnresolvedDependency Code = "UNRESOLVED_DEPENDENCY"
	CodeConstructionError    Code = "CONSTRUCTION_ERROR"
	CodeActivationError      Code = "ACTIVATION_ERROR"
	CodeDeactivationError    Code = "DEACTIVATION_ERROR"
	CodeShuttingDown         Code = "SHUTTING_DOWN"
	CodeUnsupported          Code = "UNSUPPORTED"
)

// Sentinel values for errors.Is comparisons where no plugin-specific context
// is needed.
var (
	ErrShuttingDown = &PluginError{Code: CodeShuttingDown, Message: "manager is shutting down"}
	ErrUnsupported  = &PluginError{Code: CodeUnsupported, Message: "operation not supported in this version"}
)

// PluginError is the detailed error type surfaced by every operation named
// in the external interface: registry inserts, resolver passes, and
// lifecycle construction/activation/deactivation.
type PluginError struct {
	PluginID  string
	Operation string
	Message   string
	Code      Code
	Err       error
}

func (e *PluginError) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.PluginID != "" {
		parts = append(parts, fmt.Sprintf("plugin %q", e.PluginID))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("during %q", e.Operation))
	}
	parts = append(parts, "failed")
	if e.Message != "" {
		parts = append(parts, ":", e.Message)
	}
	msg := strings.Join(parts, " ")
	if e.Err != nil {
		msg = fmt.Sprintf("%s (caused by: %v)", msg, e.Err)
	}
	return msg
}

func (e *PluginError) Unwrap() error { return e.Err }

// Is lets errors.Is match on Code alone, so a freshly constructed sentinel
// (as above) compares equal to any PluginError of the same code.
func (e *PluginError) Is(target error) bool {
	t, ok := target.(*PluginError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

func New(code Code, pluginID, operation, message string, cause error) *PluginError {
	return &PluginError{
		PluginID:  pluginID,
		Operation: operation,
		Message:   message,
		Code:      code,
		Err:       cause,
	}
}

func DuplicateID(id string) *PluginError {
	return New(CodeDuplicateID, id, "insert", "a plugin with this id is already registered", nil)
}

func InvalidDescriptor(id, reason string) *PluginError {
	return New(CodeInvalidDescriptor, id, "descriptor", reason, nil)
}

func Unlinkable(id string) *PluginError {
	return New(CodeUnlinkable, id, "construct", "plugin is not linkable", nil)
}

func UnresolvedDependency(id, depID string) *PluginError {
	return New(CodeUnresolvedDependency, id, "resolve", fmt.Sprintf("dependency %q is not bound", depID), nil)
}

func ConstructionError(id string, cause error) *PluginError {
	return New(CodeConstructionError, id, "construct", "construction failed", cause)
}

func ActivationError(id string, cause error) *PluginError {
	return New(CodeActivationError, id, "activate", "activation failed", cause)
}

func DeactivationError(id string, cause error) *PluginError {
	return New(CodeDeactivationError, id, "deactivate", "deactivation failed", cause)
}

// AsPluginError unwraps err looking for a *PluginError in its chain.
func AsPluginError(err error) (*PluginError, bool) {
	var pe *PluginError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
