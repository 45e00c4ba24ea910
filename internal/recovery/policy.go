// Package recovery classifies run failures and decides the substitute
// behavior the caller observes. Only malformed requests and unclassified
// internal faults surface as errors; everything downstream of a valid
// request degrades to an in-band apologetic answer.
package recovery

import (
	"errors"
	"fmt"

	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
)

// Kind is the closed failure taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindUpstream
	KindQuota
	KindTool
	KindPersistence
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindQuota:
		return "quota"
	case KindTool:
		return "tool"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// ValidationError rejects a request before any state machine entry.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validation creates a ValidationError with the given message.
func Validation(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

// Classify maps err onto the taxonomy. Classification relies on typed
// errors only, never on message text.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	if errors.Is(err, types.ErrNotFound) {
		return KindNotFound
	}

	if kind, ok := llm.KindOf(err); ok {
		switch kind {
		case llm.FailureQuota:
			return KindQuota
		case llm.FailureTool:
			return KindTool
		default:
			return KindUpstream
		}
	}

	return KindInternal
}

// QuotaApology is the fixed cooldown message for quota exhaustion. It is
// deliberately distinct from the generic failure text so users do not
// read a capacity problem as a data or logic bug.
const QuotaApology = "I'm currently experiencing high demand and cannot process your request. Please try again in a few minutes, or contact the administrator about API quota limits."

// Apology returns the user-facing substitute answer for a recovered
// failure.
func Apology(err error) string {
	if Classify(err) == KindQuota {
		return QuotaApology
	}
	return fmt.Sprintf("I encountered an error while processing your request: %v", err)
}

// Recoverable reports whether a failure is absorbed into an apologetic
// answer rather than surfaced to the caller as an error.
func Recoverable(k Kind) bool {
	switch k {
	case KindUpstream, KindQuota, KindTool:
		return true
	}
	return false
}

// Retryable reports whether a failed run may be retried. Quota failures
// are excluded: retrying them only extends the cooldown.
func Retryable(err error) bool {
	return Classify(err) == KindUpstream
}
