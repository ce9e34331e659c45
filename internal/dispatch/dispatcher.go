// Package dispatch runs sub-plans concurrently and waits for all of them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// DefaultTimeout bounds how long one sub-plan may run.
const DefaultTimeout = 15 * time.Minute

// Engine executes one sub-plan and returns it with its final status and
// metrics filled in.
type Engine interface {
	Execute(ctx context.Context, plan *models.Plan) (*models.Plan, error)
}

// EngineFactory hands out a dedicated engine per agent. When the engine
// passed to Run also implements EngineFactory, each sub-plan runs on the
// engine returned for its lead agent.
type EngineFactory interface {
	EngineFor(agentID string) Engine
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, plan *models.Plan) (*models.Plan, error)

// Execute calls f.
func (f EngineFunc) Execute(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	return f(ctx, plan)
}

// Dispatcher fans sub-plans out to engines and joins on the results.
type Dispatcher struct {
	// Timeout applies to each sub-plan separately. Zero disables it.
	Timeout time.Duration
	// OnDispatch and OnFinish are called from the sub-plan's goroutine and
	// must be safe for concurrent use.
	OnDispatch func(sub *models.Plan)
	OnFinish   func(sub *models.Plan)

	logger *logging.Logger
}

// New creates a Dispatcher with the default timeout.
func New(logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		Timeout: DefaultTimeout,
		logger:  logger.With("dispatch"),
	}
}

// Run executes every sub-plan on its own goroutine and returns once all of
// them are terminal. Results keep the order of subPlans. Each engine receives
// its own clone. A sub-plan whose engine errors, times out, is cancelled or
// returns a non-terminal plan is reported as failed with an explicit error.
func (d *Dispatcher) Run(ctx context.Context, subPlans []*models.Plan, engine Engine) []*models.Plan {
	results := make([]*models.Plan, len(subPlans))

	var wg sync.WaitGroup
	for i, sub := range subPlans {
		wg.Add(1)
		go func(i int, sub *models.Plan) {
			defer wg.Done()
			results[i] = d.runOne(ctx, sub, d.engineFor(engine, sub))
			if d.OnFinish != nil {
				d.OnFinish(results[i])
			}
		}(i, sub)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) engineFor(engine Engine, sub *models.Plan) Engine {
	if f, ok := engine.(EngineFactory); ok && sub != nil {
		if e := f.EngineFor(sub.LeadID); e != nil {
			return e
		}
	}
	return engine
}

type outcome struct {
	plan *models.Plan
	err  error
}

func (d *Dispatcher) runOne(ctx context.Context, sub *models.Plan, engine Engine) *models.Plan {
	if sub == nil {
		return &models.Plan{Status: models.PlanFailed, Errors: []string{"sub-plan <nil>: missing plan"}}
	}

	ctx, span := startSubPlanSpan(ctx, sub)
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d.Timeout, fmt.Errorf("timed out after %s", d.Timeout))
		defer cancel()
	}

	running := sub.Clone()
	running.Status = models.PlanExecuting
	if d.OnDispatch != nil {
		d.OnDispatch(running.Clone())
	}
	d.logger.Log("sub-plan %s: dispatched to %s (%d steps)", sub.ID, sub.LeadID, len(sub.Steps))

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		p, err := engine.Execute(ctx, running.Clone())
		done <- outcome{plan: p, err: err}
	}()

	var result *models.Plan
	var runErr error
	select {
	case out := <-done:
		result, runErr = out.plan, out.err
		if runErr == nil && result == nil {
			runErr = errors.New("engine returned no plan")
		}
	case <-ctx.Done():
		runErr = fmt.Errorf("cancelled: %w", context.Cause(ctx))
	}

	if result == nil {
		result = running.Clone()
	}
	if result.TotalDurationMs == 0 {
		result.TotalDurationMs = time.Since(start).Milliseconds()
	}

	switch {
	case runErr != nil:
		result.Status = models.PlanFailed
		result.Errors = append(result.Errors, fmt.Sprintf("sub-plan %s: %v", sub.ID, runErr))
		d.logger.Error("sub-plan %s: %v", sub.ID, runErr)
	case !result.Status.Terminal():
		d.logger.Warn("sub-plan %s: engine returned non-terminal status %q", sub.ID, result.Status)
		result.Errors = append(result.Errors,
			fmt.Sprintf("sub-plan %s: finished with non-terminal status %q", sub.ID, result.Status))
		result.Status = models.PlanFailed
	default:
		d.logger.Log("sub-plan %s: %s in %dms", sub.ID, result.Status, result.TotalDurationMs)
	}

	if result.CompletedAt == nil {
		now := time.Now()
		result.CompletedAt = &now
	}
	endSubPlanSpan(span, result, runErr)
	return result
}
