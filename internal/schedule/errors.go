package schedule

import "fmt"

// SpecError reports an invalid schedule. It is only returned while building a
// Spec, never while evaluating one.
type SpecError struct {
	Field  string
	Value  string
	Reason string
}

func (e *SpecError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid schedule: %s %q: %s", e.Field, e.Value, e.Reason)
}

func specErr(field, value, reason string) error {
	return &SpecError{Field: field, Value: value, Reason: reason}
}
