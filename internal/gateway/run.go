package gateway

import (
	"context"
	"time"

	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Outcome is what a completed Run delivers back to its waiter.
type Outcome struct {
	Result *runtime.Result
	Err    error
}

// Run tracks a single execution of an agent request against a session.
type Run struct {
	ID        types.RunID
	SessionID types.SessionID
	Request   *runtime.Request
	Status    RunStatus
	Attempts  int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error

	Ctx  context.Context
	done chan Outcome
}

// NewRun creates a Run in the Queued state for the given request.
func NewRun(req *runtime.Request) *Run {
	if req.RunID == "" {
		req.RunID = types.NewRunID()
	}
	return &Run{
		ID:        req.RunID,
		SessionID: req.SessionID,
		Request:   req,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
		done:      make(chan Outcome, 1),
	}
}

// Done returns the channel the run's outcome is delivered on.
func (r *Run) Done() <-chan Outcome { return r.done }

func (r *Run) deliver(res *runtime.Result, err error) {
	now := time.Now()
	r.EndedAt = &now
	if err != nil {
		r.Status = RunStatusFailed
		r.Error = err
	} else {
		r.Status = RunStatusComplete
	}
	// The channel is buffered so delivery never blocks the lane, even
	// when the waiter gave up.
	if r.done != nil {
		r.done <- Outcome{Result: res, Err: err}
	}
}
