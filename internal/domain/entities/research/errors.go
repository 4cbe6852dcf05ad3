package research

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrGenerationFailed = errors.New("generation failed")
	ErrNotFound         = errors.New("not found")
	ErrUnknownUser      = errors.New("unknown user")
	ErrInvalidKey       = errors.New("invalid cache key")
)

// QuotaLimitMessage is the user-facing text for a denied authorization.
const QuotaLimitMessage = "Monthly report limit reached. Limit resets on the 1st of next month."

// FailureKind classifies why the external generator did not produce content.
type FailureKind string

const (
	FailureTimeout         FailureKind = "Timeout"
	FailureUpstreamError   FailureKind = "UpstreamError"
	FailureMalformedOutput FailureKind = "MalformedOutput"
)

// QuotaExceededError is returned when a must-generate request is not
// authorized. Fallback holds the cached entry, if one exists, so callers can
// degrade to serving it.
type QuotaExceededError struct {
	Usage    *Usage
	Fallback *Result
}

func (e *QuotaExceededError) Error() string {
	if e.Usage == nil {
		return ErrQuotaExceeded.Error()
	}
	return fmt.Sprintf("%s: %d of %d used (%s)", ErrQuotaExceeded, e.Usage.Consumed, e.Usage.Limit, e.Usage.ResetPolicy)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// GenerationFailedError wraps an upstream generator failure.
type GenerationFailedError struct {
	Kind FailureKind
	Err  error
}

// NewGenerationFailed builds a GenerationFailedError of the given kind.
func NewGenerationFailed(kind FailureKind, err error) *GenerationFailedError {
	return &GenerationFailedError{Kind: kind, Err: err}
}

func (e *GenerationFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrGenerationFailed, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", ErrGenerationFailed, e.Kind, e.Err)
}

func (e *GenerationFailedError) Is(target error) bool {
	return target == ErrGenerationFailed
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the failure kind from err, if it is a generation failure.
func FailureKindOf(err error) (FailureKind, bool) {
	var failed *GenerationFailedError
	if errors.As(err, &failed) {
		return failed.Kind, true
	}
	return "", false
}
