// Package worker runs dispatches concurrently. Each worker owns exactly one
// host session and one dispatcher; sessions are never shared.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
)

const logPrefix = "worker:pool"

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Factory builds the dispatcher of worker id, including its own session.
type Factory func(id int) (*dispatcher.Dispatcher, error)

// job runs on whichever worker picks it up.
type job struct {
	ctx  context.Context
	run  func(ctx context.Context, d *dispatcher.Dispatcher)
	done chan struct{}
}

// Pool hands jobs to a fixed set of workers through a channel.
type Pool struct {
	jobs        chan job
	dispatchers []*dispatcher.Dispatcher
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPoolParams holds parameters for NewPool.
type NewPoolParams struct {
	// Size is the number of workers. Values below 1 mean 1.
	Size    int
	Factory Factory
}

// NewPool builds every worker's dispatcher and starts the workers.
func NewPool(params NewPoolParams) (*Pool, error) {
	if params.Factory == nil {
		return nil, fmt.Errorf("%s - factory is required", logPrefix)
	}
	size := params.Size
	if size < 1 {
		size = 1
	}

	p := &Pool{jobs: make(chan job)}
	for id := 0; id < size; id++ {
		d, err := params.Factory(id)
		if err != nil {
			p.closeSessions(context.Background())
			return nil, fmt.Errorf("%s - build worker %d: %w", logPrefix, id, err)
		}
		p.dispatchers = append(p.dispatchers, d)
	}

	for id, d := range p.dispatchers {
		p.wg.Add(1)
		go p.loop(id, d)
	}
	slog.Info(fmt.Sprintf("%s - Started %d workers", logPrefix, size))
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.dispatchers) }

func (p *Pool) loop(id int, d *dispatcher.Dispatcher) {
	defer p.wg.Done()
	for j := range p.jobs {
		if j.ctx.Err() == nil {
			slog.Debug(fmt.Sprintf("%s - Worker %d picked up a job", logPrefix, id))
			j.run(j.ctx, d)
		}
		close(j.done)
	}
	slog.Debug(fmt.Sprintf("%s - Worker %d stopped", logPrefix, id))
}

// submit blocks until a worker has run fn or ctx is done.
func (p *Pool) submit(ctx context.Context, fn func(ctx context.Context, d *dispatcher.Dispatcher)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	j := job{ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return fmt.Errorf("%s - no worker available: %w", logPrefix, ctx.Err())
	}
	<-j.done
	return ctx.Err()
}

// DispatchOutcome runs one dispatch on a free worker.
func (p *Pool) DispatchOutcome(ctx context.Context, out normalizer.Outcome) (*dispatcher.Result, error) {
	var res *dispatcher.Result
	var derr error
	ran := false
	err := p.submit(ctx, func(ctx context.Context, d *dispatcher.Dispatcher) {
		ran = true
		res, derr = d.DispatchOutcome(ctx, out)
	})
	if !ran {
		return nil, err
	}
	return res, derr
}

// Blocks lists the host's blocks through a free worker.
func (p *Pool) Blocks(ctx context.Context) ([]string, error) {
	var blocks []string
	var berr error
	ran := false
	err := p.submit(ctx, func(ctx context.Context, d *dispatcher.Dispatcher) {
		ran = true
		blocks, berr = d.Blocks(ctx)
	})
	if !ran {
		return nil, err
	}
	return blocks, berr
}

// Reconnects sums the reconnects of every worker session.
func (p *Pool) Reconnects() int {
	total := 0
	for _, d := range p.dispatchers {
		total += d.Session().Reconnects()
	}
	return total
}

// Close stops accepting work, waits for running jobs and closes every session.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	return p.closeSessions(ctx)
}

func (p *Pool) closeSessions(ctx context.Context) error {
	var errs []error
	for _, d := range p.dispatchers {
		if err := d.Session().Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s - close sessions: %w", logPrefix, errors.Join(errs...))
	}
	return nil
}
