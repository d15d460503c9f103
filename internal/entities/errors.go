package entities

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrBusy                  = errors.New("another message for this sender is being processed")
	ErrDependencyTimeout     = errors.New("dependency timeout")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Normalization error codes.
const (
	CodeMissingSender    = "MISSING_SENDER"
	CodeUnsupportedEvent = "UNSUPPORTED_EVENT"
	CodeSelfMessage      = "SELF_MESSAGE"
	CodeEmptyPayload     = "EMPTY_PAYLOAD"
)

// NormalizationError rejects a payload at ingress.
type NormalizationError struct {
	Code   string
	Detail string
}

func (e *NormalizationError) Error() string {
	if e.Detail == "" {
		return "normalize: " + e.Code
	}
	return fmt.Sprintf("normalize: %s: %s", e.Code, e.Detail)
}

// ClassificationWarning is returned with a defaulted customer role when the staff lookup failed.
type ClassificationWarning struct {
	Phone string
	Err   error
}

func (w *ClassificationWarning) Error() string {
	return fmt.Sprintf("classify %s: staff lookup failed, defaulted to customer: %v", w.Phone, w.Err)
}

func (w *ClassificationWarning) Unwrap() error { return w.Err }

// ValidationError rejects an operator step answer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type DependencyKind string

const (
	KindTimeout     DependencyKind = "timeout"
	KindUnavailable DependencyKind = "unavailable"
)

// DependencyError is produced by the resilience layer when a call timed out or its circuit is open.
type DependencyError struct {
	Dependency string
	Kind       DependencyKind
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Dependency, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Dependency, e.Kind)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrDependencyTimeout:
		return e.Kind == KindTimeout
	case ErrDependencyUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// IntegrityViolation marks a generated reply that asserts something the loop did not do.
type IntegrityViolation struct {
	Rule    string
	Excerpt string
}

func (v *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation (%s): %q", v.Rule, v.Excerpt)
}
