// Package errors implements the moderation pipeline's typed error taxonomy.
// Every failure a component can produce is classified into one of a closed
// set of kinds so the pipeline can decide, without inspecting strings,
// whether to retry, fail open, fail closed, or escalate to a human.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// KindTransientRemote marks a failure in a remote dependency (LLM
	// provider, classifier, host API) that is expected to succeed on retry.
	KindTransientRemote Kind = "transient_remote"

	// KindBudgetExceeded marks a skipped AI rule evaluation because the
	// community's cost budget for the window has been exhausted.
	KindBudgetExceeded Kind = "budget_exceeded"

	// KindValidationFailure marks malformed input: a rule, a settings
	// document, or an inbound event that failed schema/shape validation.
	KindValidationFailure Kind = "validation_failure"

	// KindSecurityViolation marks an attempt to evaluate a condition or
	// expression outside the sandboxed field allow-list.
	KindSecurityViolation Kind = "security_violation"

	// KindCatastrophicRuleError marks a rule whose evaluation panicked or
	// produced an unrecoverable internal error; the event is flagged for
	// manual review rather than allowed to take down the pipeline.
	KindCatastrophicRuleError Kind = "catastrophic_rule_error"

	// KindHostActionFailure marks a failure to apply a decided action
	// (remove, approve, comment) against the host platform.
	KindHostActionFailure Kind = "host_action_failure"
)

// Error wraps an underlying error with a Kind so callers can branch on
// errors.As without parsing messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf creates a typed Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err is a typed Error of the given kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == kind
}

// KindOf extracts the Kind from err, returning ok=false if err is not a
// typed Error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if !errors.As(err, &te) {
		return "", false
	}
	return te.Kind, true
}
