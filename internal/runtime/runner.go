// Package runtime drives one request through the agent's
// reasoning/tool-invocation loop and exposes the result either
// synchronously or as an ordered stream of events.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ctxengine "github.com/user/graphrag/internal/context"
	"github.com/user/graphrag/internal/recovery"
	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
)

// Runner executes agent runs. It owns no shared mutable state: every
// run's dependencies arrive in the Request, so concurrent runs for
// different sessions are fully independent.
type Runner struct {
	provider  llm.Provider
	assembler *ctxengine.Assembler
	store     types.ConversationStore
	registry  *Registry
	maxRounds int
}

// New creates a Runner with the given dependencies.
func New(provider llm.Provider, assembler *ctxengine.Assembler, store types.ConversationStore, registry *Registry, maxRounds int) *Runner {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Runner{
		provider:  provider,
		assembler: assembler,
		store:     store,
		registry:  registry,
		maxRounds: maxRounds,
	}
}

// Request carries one run's inputs. Persist false (stateless mode)
// suppresses all conversation writes while returning the same answer
// and tool-call list.
type Request struct {
	RunID     types.RunID
	SessionID types.SessionID
	UserID    string
	Message   string
	Metadata  map[string]any
	Persist   bool
}

// Result is a completed run: the answer text and the tools used.
type Result struct {
	Answer string
	Tools  []types.ToolCall
}

// Run executes the whole state machine synchronously. Upstream, quota
// and tool failures are recovered into an apologetic answer and the
// turn is still persisted; only validation and internal faults surface
// as errors.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	return r.RunWith(ctx, req, func() (*Result, error) {
		return r.Attempt(ctx, req)
	})
}

// Attempt runs the reasoning/tool loop once and returns the raw,
// unrecovered error. Callers that want retry wrap this and hand the
// final outcome to RunWith.
func (r *Runner) Attempt(ctx context.Context, req *Request) (*Result, error) {
	return r.execute(ctx, req, nil)
}

// RunWith validates the request, obtains the outcome from attempt, and
// applies recovery and persistence to it.
func (r *Runner) RunWith(ctx context.Context, req *Request, attempt func() (*Result, error)) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, recovery.Validation("message is required")
	}

	res, err := attempt()
	if err != nil {
		kind := recovery.Classify(err)
		if !recovery.Recoverable(kind) {
			return nil, err
		}
		slog.Warn("run recovered", "run_id", string(req.RunID), "session_id", string(req.SessionID), "kind", kind.String(), "error", err)
		apology := recovery.Apology(err)
		r.persistTurn(ctx, req, apology, map[string]any{
			"error":      err.Error(),
			"error_type": kind.String(),
		})
		return &Result{Answer: apology}, nil
	}

	r.persistTurn(ctx, req, res.Answer, map[string]any{
		"tool_calls": len(res.Tools),
	})
	return res, nil
}

// StreamRun exposes the same state machine incrementally: a session
// event first, a text_delta per reasoning fragment, one tool_summary
// after finalizing when tools were used, and exactly one terminal end
// or error event, always last. The sequence is lazy, ordered, finite
// and single-pass; production stops at any suspension point once ctx is
// cancelled.
func (r *Runner) StreamRun(ctx context.Context, req *Request) <-chan types.StreamEvent {
	ch := make(chan types.StreamEvent)

	go func() {
		defer close(ch)

		send := func(ev types.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(types.StreamEvent{Type: types.StreamSession, SessionID: req.SessionID}) {
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			send(types.StreamEvent{Type: types.StreamError, Content: "message is required"})
			return
		}

		// The user message is persisted up front so the turn survives a
		// mid-stream disconnect; the assistant message is only written
		// once the run finalizes.
		if req.Persist {
			if _, err := r.store.AppendMessage(ctx, req.SessionID, types.RoleUser, req.Message, r.userMetadata(req)); err != nil {
				slog.Warn("persist user message failed", "session_id", string(req.SessionID), "error", err)
			}
		}

		res, err := r.execute(ctx, req, func(delta string) bool {
			return send(types.StreamEvent{Type: types.StreamTextDelta, Content: delta})
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("stream recovered", "run_id", string(req.RunID), "session_id", string(req.SessionID), "error", err)
			send(types.StreamEvent{Type: types.StreamError, Content: recovery.Apology(err)})
			return
		}

		if len(res.Tools) > 0 {
			if !send(types.StreamEvent{Type: types.StreamToolSummary, Tools: res.Tools}) {
				return
			}
		}

		if req.Persist {
			if _, err := r.store.AppendMessage(ctx, req.SessionID, types.RoleAssistant, res.Answer, map[string]any{
				"streamed":   true,
				"tool_calls": len(res.Tools),
			}); err != nil {
				slog.Warn("persist assistant message failed", "session_id", string(req.SessionID), "error", err)
			}
		}

		send(types.StreamEvent{Type: types.StreamEnd})
	}()

	return ch
}

// execute runs the reasoning/tool loop. emit is nil in non-streaming
// mode; in streaming mode it surfaces each text fragment and reports
// false when the consumer is gone.
func (r *Runner) execute(ctx context.Context, req *Request, emit func(string) bool) (*Result, error) {
	prompt, err := r.assembler.BuildPrompt(ctx, req.SessionID, req.Message)
	if err != nil {
		return nil, err
	}

	tools := r.registry.AsLLMTools()
	var trace []llm.TraceEvent
	var answer strings.Builder

	for round := 0; round < r.maxRounds; round++ {
		var toolCalls []llm.ToolCall

		if emit == nil {
			resp, err := r.provider.Complete(ctx, prompt, tools)
			if err != nil {
				return nil, err
			}
			if resp.Content != "" {
				trace = append(trace, llm.TraceEvent{Kind: llm.TraceText, Text: resp.Content})
				answer.WriteString(resp.Content)
			}
			toolCalls = resp.ToolCalls
		} else {
			deltas, err := r.provider.Stream(ctx, prompt, tools)
			if err != nil {
				return nil, err
			}
			for delta := range deltas {
				if delta.Err != nil {
					return nil, delta.Err
				}
				if delta.Content != "" {
					trace = append(trace, llm.TraceEvent{Kind: llm.TraceText, Text: delta.Content})
					answer.WriteString(delta.Content)
					if !emit(delta.Content) {
						return nil, ctx.Err()
					}
				}
				toolCalls = append(toolCalls, delta.ToolCalls...)
			}
		}

		if len(toolCalls) == 0 {
			return &Result{Answer: answer.String(), Tools: TrackToolCalls(trace)}, nil
		}

		results := make([]llm.ToolResult, 0, len(toolCalls))
		for i := range toolCalls {
			call := &toolCalls[i]
			trace = append(trace, llm.TraceEvent{Kind: llm.TraceToolCall, Call: call})

			tool, ok := r.registry.Get(call.Name)
			if !ok {
				return nil, llm.ToolFailure(call.Name, errors.New("unknown tool"))
			}
			out, err := tool.Execute(ctx, call.Arguments)
			if err != nil {
				return nil, llm.ToolFailure(call.Name, err)
			}

			result := llm.ToolResult{CallID: call.ID, Name: call.Name, Content: out}
			results = append(results, result)
			trace = append(trace, llm.TraceEvent{Kind: llm.TraceToolResult, Result: &results[len(results)-1]})
		}

		prompt = continueWithEvidence(prompt, results)
	}

	return nil, llm.Upstream(fmt.Sprintf("max tool rounds (%d) exceeded", r.maxRounds), nil)
}

// persistTurn writes the user and assistant messages, in that order.
// Persistence is best-effort: failures are logged, never surfaced.
func (r *Runner) persistTurn(ctx context.Context, req *Request, answer string, assistantMeta map[string]any) {
	if !req.Persist {
		return
	}
	if _, err := r.store.AppendMessage(ctx, req.SessionID, types.RoleUser, req.Message, r.userMetadata(req)); err != nil {
		slog.Warn("persist user message failed", "session_id", string(req.SessionID), "error", err)
		return
	}
	if _, err := r.store.AppendMessage(ctx, req.SessionID, types.RoleAssistant, answer, assistantMeta); err != nil {
		slog.Warn("persist assistant message failed", "session_id", string(req.SessionID), "error", err)
	}
}

func (r *Runner) userMetadata(req *Request) map[string]any {
	meta := map[string]any{}
	if req.UserID != "" {
		meta["user_id"] = req.UserID
	}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	return meta
}

// continueWithEvidence extends the prompt with tool outputs so the next
// reasoning round can ground its answer on them.
func continueWithEvidence(prompt string, results []llm.ToolResult) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	for _, res := range results {
		sb.WriteString(fmt.Sprintf("\n\nTool %s returned:\n%s", res.Name, res.Content))
	}
	sb.WriteString("\n\nContinue answering the current question using this evidence. Only call another tool if more evidence is required.")
	return sb.String()
}
