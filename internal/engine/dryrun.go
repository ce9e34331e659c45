package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/fanout/internal/graph"
	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// DryRun walks a sub-plan in dependency order without invoking any tool.
// It records what a real engine would report: statuses, modified files,
// change IDs and tool-call counts.
type DryRun struct {
	// Gate is consulted before every step. Nil allows everything.
	Gate TierGate
	// StepDelay simulates work per step.
	StepDelay time.Duration

	logger      *logging.Logger
	newChangeID func() string
}

// NewDryRun creates a DryRun engine.
func NewDryRun(gate TierGate, logger *logging.Logger) *DryRun {
	return &DryRun{
		Gate:        gate,
		logger:      logger.With("dryrun"),
		newChangeID: uuid.NewString,
	}
}

// Execute runs the plan and returns a finished copy. Failures are recorded
// on the returned plan; the error is reserved for a nil plan.
func (e *DryRun) Execute(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if plan == nil {
		return nil, fmt.Errorf("dry run: nil plan")
	}

	start := time.Now()
	out := plan.Clone()
	out.Status = models.PlanExecuting
	defer func() {
		out.TotalDurationMs = time.Since(start).Milliseconds()
		now := time.Now()
		out.CompletedAt = &now
	}()

	g := graph.New()
	if err := g.Build(out.Steps); err != nil {
		e.logger.Error("plan %s: %v", out.ID, err)
		skipPending(out)
		out.Status = models.PlanFailed
		out.Errors = append(out.Errors, fmt.Sprintf("plan %s: %v", out.ID, err))
		return out, nil
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		skipPending(out)
		out.Status = models.PlanFailed
		out.Errors = append(out.Errors, fmt.Sprintf("plan %s: %v", out.ID, err))
		return out, nil
	}

	for _, n := range order {
		step, _ := out.Step(n)
		if step.Status == models.StepSkipped {
			continue
		}

		if err := e.wait(ctx); err != nil {
			skipPending(out)
			out.Status = models.PlanFailed
			out.Errors = append(out.Errors, fmt.Sprintf("plan %s: cancelled: %v", out.ID, err))
			e.logger.Warn("plan %s: cancelled before step %d", out.ID, n)
			return out, nil
		}

		step.Status = models.StepRunning
		if e.Gate != nil {
			if err := e.Gate.Allow(out.SecurityTier, *step); err != nil {
				step.Status = models.StepFailed
				out.Errors = append(out.Errors, fmt.Sprintf("step %d: %v", n, err))
				e.logger.Warn("plan %s: step %d denied: %v", out.ID, n, err)
				for _, dep := range g.TransitiveDependents(n) {
					if s, ok := out.Step(dep); ok && !s.Status.Terminal() {
						s.Status = models.StepSkipped
					}
				}
				continue
			}
		}

		out.TotalToolCalls++
		if step.Action.Mutates() {
			for _, f := range step.TargetFiles {
				if f != "" && !slices.Contains(out.FilesModified, f) {
					out.FilesModified = append(out.FilesModified, f)
				}
			}
			out.ChangeIDs = append(out.ChangeIDs, e.newChangeID())
		}
		step.Status = models.StepCompleted
	}

	out.Status = finalStatus(out.Steps)
	e.logger.Log("plan %s: %s, %d tool calls, %d files", out.ID, out.Status, out.TotalToolCalls, len(out.FilesModified))
	return out, nil
}

func (e *DryRun) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	if e.StepDelay <= 0 {
		return nil
	}
	t := time.NewTimer(e.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

func skipPending(p *models.Plan) {
	for i := range p.Steps {
		if !p.Steps[i].Status.Terminal() {
			p.Steps[i].Status = models.StepSkipped
		}
	}
}

func finalStatus(steps []models.Step) models.PlanStatus {
	completed := 0
	for _, s := range steps {
		if s.Status == models.StepCompleted {
			completed++
		}
	}
	switch {
	case completed == len(steps):
		return models.PlanCompleted
	case completed == 0:
		return models.PlanFailed
	default:
		return models.PlanPartial
	}
}
