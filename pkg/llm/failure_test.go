package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind FailureKind
		wantOK   bool
	}{
		{"upstream", Upstream("chat completion", errors.New("502")), FailureUpstream, true},
		{"quota", Quota("chat completion", errors.New("429")), FailureQuota, true},
		{"tool", ToolFailure("vector_search", errors.New("boom")), FailureTool, true},
		{"wrapped", fmt.Errorf("run failed: %w", Quota("stream", errors.New("429"))), FailureQuota, true},
		{"plain error", errors.New("insufficient_quota"), 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := KindOf(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, kind)
			}
		})
	}
}

func TestFailureError(t *testing.T) {
	f := ToolFailure("graph_search", errors.New("bolt unreachable"))
	msg := f.Error()
	if msg != "tool failure: graph_search: bolt unreachable" {
		t.Errorf("unexpected message %q", msg)
	}

	bare := &Failure{Kind: FailureUpstream, Message: "stream"}
	if bare.Error() != "upstream failure: stream" {
		t.Errorf("unexpected message %q", bare.Error())
	}
}

func TestFailureUnwrap(t *testing.T) {
	inner := errors.New("context deadline exceeded")
	f := Upstream("chat completion", inner)
	if !errors.Is(f, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}
