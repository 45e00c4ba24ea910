package llm

import (
	"errors"
	"fmt"
)

// FailureKind is the closed classification of provider and tool
// failures. Downstream code matches on the kind, never on message text.
type FailureKind int

const (
	// FailureUpstream covers inference-call failures other than quota
	// exhaustion: transport errors, 5xx responses, malformed replies.
	FailureUpstream FailureKind = iota
	// FailureQuota covers rate-limit and quota exhaustion responses.
	FailureQuota
	// FailureTool covers errors raised while executing a requested tool.
	FailureTool
)

func (k FailureKind) String() string {
	switch k {
	case FailureUpstream:
		return "upstream"
	case FailureQuota:
		return "quota"
	case FailureTool:
		return "tool"
	}
	return "unknown"
}

// Failure is a classified error from the provider boundary.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s failure: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Upstream wraps err as a generic inference failure.
func Upstream(msg string, err error) *Failure {
	return &Failure{Kind: FailureUpstream, Message: msg, Err: err}
}

// Quota wraps err as a rate/quota exhaustion failure.
func Quota(msg string, err error) *Failure {
	return &Failure{Kind: FailureQuota, Message: msg, Err: err}
}

// ToolFailure wraps err as a failure of the named tool.
func ToolFailure(tool string, err error) *Failure {
	return &Failure{Kind: FailureTool, Message: tool, Err: err}
}

// KindOf extracts the failure kind from err. The second return is false
// when err carries no classification.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}
