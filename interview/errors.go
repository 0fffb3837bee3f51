package interview

import (
	"errors"
	"fmt"

	"github.com/krshsl/nora/models"
)

var (
	// ErrNotFound reports a missing interview or transcript
	ErrNotFound = errors.New("not found")
	// ErrModelTimeout reports a model call that exceeded its deadline
	ErrModelTimeout = errors.New("model call timed out")
	// ErrFeedbackNotReady reports an interview whose feedback has not been generated yet
	ErrFeedbackNotReady = errors.New("feedback not yet generated")
	// ErrInvalidInput reports caller-supplied values that cannot be accepted
	ErrInvalidInput = errors.New("invalid input")
)

// PreconditionError is returned when an operation is invoked against an interview
// in the wrong state, or against a missing interview or transcript.
type PreconditionError struct {
	Op          string
	InterviewID string
	Status      models.InterviewStatus
	Reason      string
	Err         error
}

func (e *PreconditionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s: %s (status %s)", e.Op, e.InterviewID, e.Reason, e.Status)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.InterviewID, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func wrongStatus(op string, iv *models.Interview, want models.InterviewStatus) *PreconditionError {
	return &PreconditionError{
		Op:          op,
		InterviewID: iv.ID,
		Status:      iv.Status,
		Reason:      fmt.Sprintf("interview must be %s", want),
	}
}

func notFound(op, id, what string) *PreconditionError {
	return &PreconditionError{
		Op:          op,
		InterviewID: id,
		Reason:      what + " not found",
		Err:         ErrNotFound,
	}
}

// ModelErrorKind classifies a failed model call
type ModelErrorKind string

const (
	ModelErrorTimeout     ModelErrorKind = "timeout"
	ModelErrorRateLimited ModelErrorKind = "rate_limited"
	ModelErrorUnavailable ModelErrorKind = "unavailable"
	ModelErrorAuth        ModelErrorKind = "auth"
	ModelErrorRejected    ModelErrorKind = "rejected"
	ModelErrorMalformed   ModelErrorKind = "malformed"
	ModelErrorTransport   ModelErrorKind = "transport"
)

// ModelCallError is returned when the upstream model call fails or its response
// carries no usable text.
type ModelCallError struct {
	Op   string
	Kind ModelErrorKind
	Err  error
}

func (e *ModelCallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s failed: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("model %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

func (e *ModelCallError) Is(target error) bool {
	return target == ErrModelTimeout && e.Kind == ModelErrorTimeout
}

// Temporary reports whether retrying the same request may succeed
func (e *ModelCallError) Temporary() bool {
	switch e.Kind {
	case ModelErrorAuth, ModelErrorRejected:
		return false
	}
	return true
}

// IsPrecondition reports whether err is a PreconditionError
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsModelError reports whether err is a ModelCallError
func IsModelError(err error) bool {
	var me *ModelCallError
	return errors.As(err, &me)
}
