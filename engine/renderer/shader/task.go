package shader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// compileResult is the outcome of one compile, produced on a worker and applied on the
// owning goroutine.
type compileResult struct {
	id      string
	gen     uint64
	out     *CompileOutput
	err     error
	elapsed time.Duration
}

var taskIDs atomic.Int64

// submit queues a compile of ident on the worker pool. done is called on the worker
// goroutine with the result and must not touch cache maps.
func (c *cache) submit(ctx context.Context, ident Identity, done func(compileResult)) {
	c.pool.SubmitTask(worker.Task{
		ID:      int(taskIDs.Add(1)),
		Payload: ident.ID,
		Do: func() (any, error) {
			r := c.compile(ctx, ident)
			done(r)
			return r.out, r.err
		},
	})
}

// SubmitRecompile queues an asynchronous recompile of id. The result is held until
// DrainCompleted applies it, so the shader maps are only mutated by the draining goroutine.
func (c *cache) SubmitRecompile(ctx context.Context, id string) error {
	ident, ok := c.table.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShader, id)
	}
	c.markStale(id)
	gen := c.stamp(id)
	c.pending.Add(1)
	c.submit(ctx, ident, func(r compileResult) {
		r.gen = gen
		c.doneMu.Lock()
		c.completed = append(c.completed, r)
		c.doneMu.Unlock()
		c.pending.Add(-1)
	})
	return nil
}

// stamp starts a new compile generation for id and returns it.
func (c *cache) stamp(id string) uint64 {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	c.generations[id]++
	return c.generations[id]
}

// DrainCompleted applies finished asynchronous compiles in completion order, skipping any
// result superseded by a later compile of the same id.
func (c *cache) DrainCompleted() int {
	c.doneMu.Lock()
	batch := make([]compileResult, 0, len(c.completed))
	for _, r := range c.completed {
		if r.gen < c.generations[r.id] {
			c.logger.Debug("dropping superseded shader compile", "shader", r.id, "generation", r.gen)
			continue
		}
		batch = append(batch, r)
	}
	c.completed = nil
	c.doneMu.Unlock()

	for _, r := range batch {
		_ = c.apply(r)
	}
	return len(batch)
}

// Pending returns the number of submitted compiles that have not finished yet.
func (c *cache) Pending() int {
	return int(c.pending.Load())
}
