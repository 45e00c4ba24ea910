package runtime

import (
	"encoding/json"

	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
)

// resultSummaryLimit caps the tool output copied onto the call record.
const resultSummaryLimit = 200

// TrackToolCalls extracts a structured record of every tool invocation
// from a run's trace, in invocation order. A call whose arguments cannot
// be decoded is still recorded, with an empty argument map and the
// decode_error flag set; a call without a name is recorded as "unknown".
// One bad call never drops the others. Tool results are matched back to
// their call by id and attached as a truncated summary.
func TrackToolCalls(trace []llm.TraceEvent) []types.ToolCall {
	var calls []types.ToolCall
	byCallID := make(map[string]int)

	for _, ev := range trace {
		switch ev.Kind {
		case llm.TraceToolCall:
			if ev.Call == nil {
				continue
			}
			call := types.ToolCall{
				ToolName:   ev.Call.Name,
				ToolCallID: ev.Call.ID,
				Args:       map[string]any{},
			}
			if call.ToolName == "" {
				call.ToolName = "unknown"
			}

			switch {
			case ev.Call.ParsedArgs != nil:
				call.Args = ev.Call.ParsedArgs
			case len(ev.Call.Arguments) > 0:
				var args map[string]any
				if err := json.Unmarshal(ev.Call.Arguments, &args); err != nil {
					call.DecodeError = true
				} else {
					call.Args = args
				}
			}

			if ev.Call.ID != "" {
				byCallID[ev.Call.ID] = len(calls)
			}
			calls = append(calls, call)

		case llm.TraceToolResult:
			if ev.Result == nil {
				continue
			}
			idx, ok := byCallID[ev.Result.CallID]
			if !ok {
				continue
			}
			calls[idx].ResultSummary = summarizeResult(ev.Result.Content)
		}
	}

	return calls
}

func summarizeResult(content string) string {
	if len(content) <= resultSummaryLimit {
		return content
	}
	return content[:resultSummaryLimit] + "..."
}
