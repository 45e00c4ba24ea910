package runtime

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/user/graphrag/pkg/llm"
)

func TestTrackToolCallsOrderAndArgs(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceText, Text: "thinking"},
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc1", Name: "vector_search", Arguments: json.RawMessage(`{"query":"go"}`),
		}},
		{Kind: llm.TraceToolResult, Result: &llm.ToolResult{CallID: "tc1", Name: "vector_search", Content: "hits"}},
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc2", Name: "graph_search", Arguments: json.RawMessage(`{"query":"rust"}`),
		}},
	}

	calls := TrackToolCalls(trace)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ToolName != "vector_search" || calls[1].ToolName != "graph_search" {
		t.Errorf("expected invocation order preserved, got %q then %q", calls[0].ToolName, calls[1].ToolName)
	}
	if calls[0].Args["query"] != "go" {
		t.Errorf("expected decoded args, got %v", calls[0].Args)
	}
	if calls[0].DecodeError {
		t.Error("unexpected decode error on valid args")
	}
}

func TestTrackToolCallsDecodeFailureKeepsBoth(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc1", Name: "vector_search", Arguments: json.RawMessage(`{not json`),
		}},
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc2", Name: "graph_search", Arguments: json.RawMessage(`{"query":"ok"}`),
		}},
	}

	calls := TrackToolCalls(trace)
	if len(calls) != 2 {
		t.Fatalf("a bad call must not drop others, got %d calls", len(calls))
	}
	if !calls[0].DecodeError {
		t.Error("expected decode_error on malformed arguments")
	}
	if len(calls[0].Args) != 0 {
		t.Errorf("expected empty args on decode failure, got %v", calls[0].Args)
	}
	if calls[1].DecodeError || calls[1].Args["query"] != "ok" {
		t.Errorf("second call should decode cleanly, got %+v", calls[1])
	}
}

func TestTrackToolCallsUnknownName(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{ID: "tc1"}},
	}
	calls := TrackToolCalls(trace)
	if len(calls) != 1 || calls[0].ToolName != "unknown" {
		t.Fatalf("expected unnamed call recorded as unknown, got %+v", calls)
	}
}

func TestTrackToolCallsPrefersParsedArgs(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID:         "tc1",
			Name:       "hybrid_search",
			Arguments:  json.RawMessage(`{"query":"raw"}`),
			ParsedArgs: map[string]any{"query": "parsed"},
		}},
	}
	calls := TrackToolCalls(trace)
	if calls[0].Args["query"] != "parsed" {
		t.Errorf("expected provider-parsed args preferred, got %v", calls[0].Args)
	}
}

func TestTrackToolCallsAttachesResultSummary(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc1", Name: "vector_search", Arguments: json.RawMessage(`{"query":"go"}`),
		}},
		{Kind: llm.TraceToolResult, Result: &llm.ToolResult{
			CallID: "tc1", Name: "vector_search", Content: "1. [0.912] Go has goroutines",
		}},
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{
			ID: "tc2", Name: "graph_search", Arguments: json.RawMessage(`{"query":"rust"}`),
		}},
	}

	calls := TrackToolCalls(trace)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ResultSummary != "1. [0.912] Go has goroutines" {
		t.Errorf("expected result attached to its call, got %q", calls[0].ResultSummary)
	}
	if calls[1].ResultSummary != "" {
		t.Errorf("call without a result must stay empty, got %q", calls[1].ResultSummary)
	}
}

func TestTrackToolCallsTruncatesLongResult(t *testing.T) {
	long := strings.Repeat("x", 500)
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolCall, Call: &llm.ToolCall{ID: "tc1", Name: "vector_search"}},
		{Kind: llm.TraceToolResult, Result: &llm.ToolResult{CallID: "tc1", Content: long}},
	}

	calls := TrackToolCalls(trace)
	want := strings.Repeat("x", 200) + "..."
	if calls[0].ResultSummary != want {
		t.Errorf("expected 200-char truncation with ellipsis, got %d chars", len(calls[0].ResultSummary))
	}
}

func TestTrackToolCallsIgnoresOrphanResult(t *testing.T) {
	trace := []llm.TraceEvent{
		{Kind: llm.TraceToolResult, Result: &llm.ToolResult{CallID: "ghost", Content: "stray"}},
	}
	if calls := TrackToolCalls(trace); len(calls) != 0 {
		t.Errorf("expected orphan result dropped, got %v", calls)
	}
}

func TestTrackToolCallsEmptyTrace(t *testing.T) {
	if calls := TrackToolCalls(nil); len(calls) != 0 {
		t.Errorf("expected no calls, got %v", calls)
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "b"})
	reg.Register(&stubTool{name: "a"})

	all := reg.All()
	if len(all) != 2 || all[0].Name() != "b" || all[1].Name() != "a" {
		t.Errorf("expected registration order, got %v", all)
	}
	if _, ok := reg.Get("a"); !ok {
		t.Error("expected lookup to find registered tool")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected lookup miss for unregistered tool")
	}

	llmTools := reg.AsLLMTools()
	if len(llmTools) != 2 || llmTools[0].Name != "b" {
		t.Errorf("expected provider tools in order, got %v", llmTools)
	}
}
