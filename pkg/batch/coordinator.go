// Package batch runs a list of drawing requests one after another through a
// single executor.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
)

const logPrefix = "batch:coordinator"

// DefaultDelay is the pause between two items.
const DefaultDelay = time.Second

// Executor dispatches one normalized request.
type Executor interface {
	DispatchOutcome(ctx context.Context, out normalizer.Outcome) (*dispatcher.Result, error)
}

// Report summarizes a batch run.
type Report struct {
	Results   []*dispatcher.Result `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Total     int                  `json:"total"`
}

// Coordinator normalizes and dispatches batch items in order.
type Coordinator struct {
	normalizer *normalizer.Normalizer
	executor   Executor
	delay      time.Duration
	onResult   func(index int, res *dispatcher.Result)
}

// NewCoordinatorParams holds parameters for NewCoordinator.
type NewCoordinatorParams struct {
	Normalizer *normalizer.Normalizer
	Executor   Executor
	// Delay between items. Zero means DefaultDelay, negative means none.
	Delay time.Duration
	// OnResult, when set, is called after every item.
	OnResult func(index int, res *dispatcher.Result)
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(params NewCoordinatorParams) *Coordinator {
	delay := params.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Coordinator{
		normalizer: params.Normalizer,
		executor:   params.Executor,
		delay:      delay,
		onResult:   params.OnResult,
	}
}

// Run processes inputs sequentially and keeps going past failed items. A
// fatal session error or a cancelled ctx stops the run; the report so far is
// returned with the error.
func (c *Coordinator) Run(ctx context.Context, inputs []normalizer.RawInput) (*Report, error) {
	report := &Report{Results: make([]*dispatcher.Result, 0, len(inputs))}
	slog.Info(fmt.Sprintf("%s - Starting batch of %d requests", logPrefix, len(inputs)))

	for i, in := range inputs {
		if i > 0 && c.delay > 0 {
			select {
			case <-ctx.Done():
				slog.Warn(fmt.Sprintf("%s - Batch cancelled after %d of %d requests", logPrefix, report.Total, len(inputs)))
				return report, fmt.Errorf("%s - batch cancelled: %w", logPrefix, ctx.Err())
			case <-time.After(c.delay):
			}
		}

		res, err := c.executor.DispatchOutcome(ctx, c.normalizer.Normalize(ctx, in))
		if res != nil {
			report.add(res)
			if c.onResult != nil {
				c.onResult(i, res)
			}
		}
		if err != nil {
			slog.Error(fmt.Sprintf("%s - Stopping batch at request %d: %v", logPrefix, i+1, err))
			return report, fmt.Errorf("%s - request %d: %w", logPrefix, i+1, err)
		}
		if !res.Success {
			slog.Warn(fmt.Sprintf("%s - Request %d failed: %s", logPrefix, i+1, res.Error))
		}
	}

	slog.Info(fmt.Sprintf("%s - Batch finished: %d succeeded, %d failed", logPrefix, report.Succeeded, report.Failed))
	return report, nil
}

func (r *Report) add(res *dispatcher.Result) {
	r.Results = append(r.Results, res)
	r.Total++
	if res.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// AllSucceeded reports whether every item of a non-empty batch succeeded.
func (r *Report) AllSucceeded() bool {
	return r.Total > 0 && r.Failed == 0
}
