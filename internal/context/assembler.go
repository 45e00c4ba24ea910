// internal/context/assembler.go
package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/graphrag/internal/types"
)

const (
	// DefaultMaxTurns is the conversation lookback window: the last
	// three exchanges plus headroom.
	DefaultMaxTurns = 10

	// renderedTail is the number of history messages actually rendered
	// into the prompt (three exchanges).
	renderedTail = 6

	historyHeader = "Previous conversation:"
	questionLabel = "Current question: "
)

// Assembler builds the bounded prompt context fed to the agent. It is
// read-only: session creation is the caller's job.
type Assembler struct {
	store     types.ConversationStore
	tokenizer *tiktoken.Tiktoken
	maxTurns  int
	budget    int
}

// New creates an Assembler. model selects the tokenizer (falling back to
// cl100k_base for unknown models); the token budget for the rendered
// prompt is maxContextTokens minus outputReserve.
func New(store types.ConversationStore, model string, maxTurns, maxContextTokens, outputReserve int) (*Assembler, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Assembler{
		store:     store,
		tokenizer: enc,
		maxTurns:  maxTurns,
		budget:    maxContextTokens - outputReserve,
	}, nil
}

func (a *Assembler) countTokens(text string) int {
	return len(a.tokenizer.Encode(text, nil, nil))
}

// Recent returns the most recent messages for the session, oldest first,
// truncated to the configured turn window. Fails with types.ErrNotFound
// only when the session id does not resolve.
func (a *Assembler) Recent(ctx context.Context, sessionID types.SessionID) ([]*types.Message, error) {
	return a.store.RecentMessages(ctx, sessionID, a.maxTurns)
}

// BuildPrompt assembles the working prompt for a new question: prior
// turns rendered as "role: content" lines under a fixed header, then the
// question under a fixed label. With no history the question passes
// through unframed. History is trimmed oldest-first to fit the token
// budget.
func (a *Assembler) BuildPrompt(ctx context.Context, sessionID types.SessionID, question string) (string, error) {
	history, err := a.Recent(ctx, sessionID)
	if err != nil {
		return "", err
	}

	tail := history
	if len(tail) > renderedTail {
		tail = tail[len(tail)-renderedTail:]
	}

	prompt := RenderPrompt(tail, question)
	if a.budget > 0 {
		for len(tail) > 0 && a.countTokens(prompt) > a.budget {
			tail = tail[1:]
			prompt = RenderPrompt(tail, question)
		}
	}

	return prompt, nil
}

// RenderPrompt produces the exact textual framing used for
// history-aware prompting.
func RenderPrompt(history []*types.Message, question string) string {
	if len(history) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString(historyHeader)
	sb.WriteString("\n")
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(questionLabel)
	sb.WriteString(question)
	return sb.String()
}
