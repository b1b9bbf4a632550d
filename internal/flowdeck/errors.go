package flowdeck

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrNodeNotFound       = errors.New("node not found")
	ErrStepNotFound       = errors.New("step not found")
	ErrCycle              = errors.New("cycle detected")
	ErrSchemaViolation    = errors.New("schema violation")
	ErrCatalogUnavailable = errors.New("tool catalog unavailable")
	ErrChannelDrop        = errors.New("live channel dropped")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// SchemaViolation reports an edit or generated value that breaks a model
// invariant. Subject names the node or step ("step 2", "node-ab12").
type SchemaViolation struct {
	Subject string `json:"subject,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *SchemaViolation) Error() string {
	switch {
	case e.Subject != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Subject, e.Field, e.Message)
	case e.Subject != "":
		return fmt.Sprintf("%s: %s", e.Subject, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *SchemaViolation) Is(target error) bool { return target == ErrSchemaViolation }

// Violationf builds a SchemaViolation with a formatted message.
func Violationf(subject, field, format string, args ...any) *SchemaViolation {
	return &SchemaViolation{Subject: subject, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Violations flattens err (possibly an errors.Join tree) into its SchemaViolations.
func Violations(err error) []*SchemaViolation {
	switch e := err.(type) {
	case nil:
		return nil
	case *SchemaViolation:
		return []*SchemaViolation{e}
	case interface{ Unwrap() []error }:
		var out []*SchemaViolation
		for _, inner := range e.Unwrap() {
			out = append(out, Violations(inner)...)
		}
		return out
	default:
		return Violations(errors.Unwrap(err))
	}
}

// ExecutionFailure is a failed step or workflow surfaced to the user.
type ExecutionFailure struct {
	WorkflowID string
	StepID     int
	Message    string
}

func (e *ExecutionFailure) Error() string {
	if e.StepID > 0 {
		return fmt.Sprintf("workflow %s: step %d failed: %s", e.WorkflowID, e.StepID, e.Message)
	}
	return fmt.Sprintf("workflow %s failed: %s", e.WorkflowID, e.Message)
}
