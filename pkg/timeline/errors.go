package timeline

import "fmt"

// DomainError reports numeric input the resampler cannot work with, such as a
// zero-length interval for interpolation or a non-positive bin size.
type DomainError struct {
	Op     string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// TypeError reports a value column whose type is not supported by an operator.
type TypeError struct {
	Operator string
	Column   string
	Type     string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: unsupported type %s for column %q", e.Operator, e.Type, e.Column)
}

func domainErrorf(op, format string, args ...interface{}) error {
	return &DomainError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
