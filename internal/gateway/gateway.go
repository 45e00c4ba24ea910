// Package gateway dispatches agent requests. It can serialize runs per
// session through FIFO lanes under a global concurrency cap, and wraps
// transient upstream failures in retry with exponential backoff.
package gateway

import (
	"context"
	"fmt"

	"github.com/user/graphrag/internal/runtime"
)

// Gateway executes agent requests through an optional per-session
// queue. With serialization off, requests run immediately on the
// caller's goroutine; either way transient upstream faults are retried
// before recovery turns them into an apology.
type Gateway struct {
	runner    *runtime.Runner
	Queue     *Queue
	retry     *RetryPolicy
	serialize bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway around runner. maxConcurrent caps simultaneous
// runs when serialization is on.
func New(runner *runtime.Runner, maxConcurrent int64, serialize bool) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	g := &Gateway{
		runner:    runner,
		Queue:     NewQueue(maxConcurrent),
		retry:     DefaultRetryPolicy(),
		serialize: serialize,
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal
// queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// Execute runs one request to completion. When serialization is on the
// request joins its session's FIFO lane; otherwise it runs inline.
func (g *Gateway) Execute(ctx context.Context, req *runtime.Request) (*runtime.Result, error) {
	if !g.serialize {
		return g.runRecovered(ctx, req)
	}

	run := NewRun(req)
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, fmt.Errorf("enqueue run: %w", err)
	}
	select {
	case out := <-run.Done():
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) process(run *Run) Outcome {
	res, err := g.runRecovered(run.Ctx, run.Request)
	return Outcome{Result: res, Err: err}
}

// runRecovered retries the raw reasoning loop on transient upstream
// faults, then lets the runner recover and persist whatever remains.
func (g *Gateway) runRecovered(ctx context.Context, req *runtime.Request) (*runtime.Result, error) {
	return g.runner.RunWith(ctx, req, func() (*runtime.Result, error) {
		var res *runtime.Result
		err := g.retry.Execute(ctx, func() error {
			r, err := g.runner.Attempt(ctx, req)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		return res, err
	})
}
