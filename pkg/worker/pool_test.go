package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/host/hosttest"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const testPrefix = "worker:pool_test"

func newTestPool(t *testing.T, size int, params host.SimulatorParams) (*Pool, *hosttest.Env) {
	t.Helper()
	env := hosttest.Start(t, params)
	reg := capability.MustDefaultRegistry()
	p, err := NewPool(NewPoolParams{
		Size: size,
		Factory: func(int) (*dispatcher.Dispatcher, error) {
			return dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
				Registry: reg,
				Session:  session.New(session.NewParams{Host: env.Host}),
				Options:  dispatcher.Options{Wait: session.WaitOptions{PollInterval: 10 * time.Millisecond, Timeout: time.Second}},
			}), nil
		},
	})
	if err != nil {
		t.Fatalf("%s - NewPool: %v", testPrefix, err)
	}
	return p, env
}

func circle() normalizer.Outcome {
	return normalizer.Outcome{
		Specification: &spec.Specification{Command: "circle", Dimensions: spec.Dimensions{spec.DimRadius: 1}},
		Source:        normalizer.SourceStructured,
	}
}

func TestPool_ConcurrentDispatch(t *testing.T) {
	p, env := newTestPool(t, 3, host.SimulatorParams{Running: true, BusyFor: 30 * time.Millisecond})
	if p.Size() != 3 {
		t.Fatalf("%s - Size = %d", testPrefix, p.Size())
	}

	var wg sync.WaitGroup
	results := make([]*dispatcher.Result, 9)
	errs := make([]error, 9)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.DispatchOutcome(context.Background(), circle())
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil || results[i] == nil || !results[i].Success {
			t.Errorf("%s - dispatch %d: %v %+v", testPrefix, i, errs[i], results[i])
		}
	}
	if got := len(env.Simulator.Commands()); got != 9 {
		t.Errorf("%s - host commands = %d, want 9", testPrefix, got)
	}
	if s := env.Simulator.Stats(); s.Sessions < 1 || s.Sessions > 3 {
		t.Errorf("%s - open sessions = %d, want at most one per worker", testPrefix, s.Sessions)
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("%s - Close: %v", testPrefix, err)
	}
	if s := env.Simulator.Stats(); s.Sessions != 0 {
		t.Errorf("%s - Close should release every session, %d open", testPrefix, s.Sessions)
	}
}

func TestPool_ClosedRejectsWork(t *testing.T) {
	p, _ := newTestPool(t, 1, host.SimulatorParams{Running: true})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("%s - Close: %v", testPrefix, err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("%s - second Close: %v", testPrefix, err)
	}

	if _, err := p.DispatchOutcome(context.Background(), circle()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("%s - err = %v, want ErrPoolClosed", testPrefix, err)
	}
	if _, err := p.Blocks(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("%s - Blocks err = %v, want ErrPoolClosed", testPrefix, err)
	}
}

func TestPool_Blocks(t *testing.T) {
	p, env := newTestPool(t, 2, host.SimulatorParams{Running: true})
	defer p.Close(context.Background())
	env.Simulator.AddBlock("EXIT_SIGN")

	blocks, err := p.Blocks(context.Background())
	if err != nil || len(blocks) != 1 || blocks[0] != "EXIT_SIGN" {
		t.Errorf("%s - Blocks = %v, %v", testPrefix, blocks, err)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	p, env := newTestPool(t, 1, host.SimulatorParams{Running: true})
	defer p.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.DispatchOutcome(ctx, circle())
	if err == nil || res != nil {
		t.Errorf("%s - cancelled dispatch = %+v, %v", testPrefix, res, err)
	}
	if len(env.Simulator.Commands()) != 0 {
		t.Errorf("%s - cancelled dispatch reached the host", testPrefix)
	}
}

func TestNewPool_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewPool(NewPoolParams{Size: 2, Factory: func(id int) (*dispatcher.Dispatcher, error) {
		return nil, boom
	}})
	if !errors.Is(err, boom) {
		t.Errorf("%s - err = %v", testPrefix, err)
	}
	if _, err := NewPool(NewPoolParams{}); err == nil {
		t.Errorf("%s - missing factory should fail", testPrefix)
	}
}
