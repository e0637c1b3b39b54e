// Package scanerr is the shared error taxonomy every subsystem returns
// instead of ad hoc error types. It generalizes the teacher's
// per-package sentinel/typed-error pairs (net/budget.ErrBudgetExhausted,
// net/circuit's state-based errors) into one set of kinds matching the
// semantic categories in the error handling design.
package scanerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a semantic error category. Callers branch on Kind, never on
// error message text.
type Kind string

const (
	KindTransientNetwork     Kind = "transient_network"
	KindPermanentHTTP        Kind = "permanent_http"
	KindRobotsDenied         Kind = "robots_denied"
	KindValidation           Kind = "validation"
	KindNormalizationWarning Kind = "normalization_warning"
	KindLLMRateLimited       Kind = "llm_rate_limited"
	KindLLMProvider          Kind = "llm_provider"
	KindLLMBudgetExhausted   Kind = "llm_budget_exhausted"
	KindImage                Kind = "image"
	KindWritePathRateLimit   Kind = "write_path_rate_limit"
	KindWritePathPersistent  Kind = "write_path_persistent"
	KindFallbackBudget       Kind = "fallback_budget_exhausted"
	KindCancelled            Kind = "cancelled"
)

// Error is the common shape every typed error in the pipeline implements.
// Retryable and RetryAfter let the job runner decide Retrying vs
// PermanentlyFailed without parsing strings.
type Error struct {
	Kind       Kind
	Op         string // the operation that failed, e.g. "fetch.discoverProducts"
	Cause      error
	retryable  bool
	retryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the job runner should re-enqueue with backoff.
func (e *Error) Retryable() bool { return e.retryable }

// RetryAfter reports a provider-suggested delay (e.g. from a Retry-After
// header), zero when none was given.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// New builds a non-retryable error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Retryable builds a retryable error, optionally honoring a suggested delay.
func Retryable(kind Kind, op string, cause error, retryAfter time.Duration) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause, retryable: true, retryAfter: retryAfter}
}

// Is supports errors.Is by comparing Kind when both sides are *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err, or any error it wraps, is a retryable
// *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.retryable
	}
	return false
}

// Sentinels for simple equality checks where no extra context is needed.
var (
	ErrRobotsDenied       = New(KindRobotsDenied, "fetch", errors.New("robots.txt disallows scraping"))
	ErrFallbackExhausted  = New(KindFallbackBudget, "fetch.fallback", errors.New("fallback budget exhausted for billing period"))
	ErrLLMBudgetExhausted = New(KindLLMBudgetExhausted, "llm", errors.New("global LLM daily budget exhausted"))
)
