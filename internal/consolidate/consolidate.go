// Package consolidate merges finished sub-plans into one parent-level result.
package consolidate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// MsgNoSubPlans is the error text reported when there is nothing to merge.
const MsgNoSubPlans = "no sub-plans to consolidate"

var tracer = otel.Tracer("github.com/ShayCichocki/fanout/internal/consolidate")

// Consolidator merges sub-plan results.
type Consolidator struct {
	logger *logging.Logger
}

// New creates a Consolidator. A nil logger disables logging.
func New(logger *logging.Logger) *Consolidator {
	return &Consolidator{logger: logger.With("consolidate")}
}

// Consolidate merges subPlans with a nop logger and no tracing parent.
func Consolidate(parent *models.Plan, subPlans []*models.Plan) models.ConsolidatedResult {
	return New(nil).Consolidate(context.Background(), parent, subPlans)
}

// Consolidate merges the terminal state of every sub-plan.
//
// Status is completed when every sub-plan completed, failed when every
// sub-plan failed or there are none, and partial otherwise. Modified files
// are deduplicated in first-seen order; change IDs and errors are
// concatenated in sub-plan order; tool calls are summed; duration is the
// slowest sub-plan's. A file modified by more than one sub-plan adds one
// "conflict:" error. A nil entry counts as a failed sub-plan.
func (c *Consolidator) Consolidate(ctx context.Context, parent *models.Plan, subPlans []*models.Plan) models.ConsolidatedResult {
	_, span := tracer.Start(ctx, "consolidate")
	defer span.End()
	if parent != nil {
		span.SetAttributes(attribute.String("plan.id", parent.ID))
	}
	span.SetAttributes(attribute.Int("subplans.count", len(subPlans)))

	result := models.ConsolidatedResult{
		FilesModified: []string{},
		ChangeIDs:     []string{},
		Errors:        []string{},
	}
	if len(subPlans) == 0 {
		result.Status = models.PlanFailed
		result.Errors = append(result.Errors, MsgNoSubPlans)
		c.logger.Warn("nothing to consolidate for plan %s", planID(parent))
		span.SetAttributes(attribute.String("plan.status", string(result.Status)))
		return result
	}

	var completed, failed int
	modifiers := make(map[string][]int)
	for i, sub := range subPlans {
		if sub == nil {
			failed++
			result.Errors = append(result.Errors, fmt.Sprintf("sub-plan %d: no result", i))
			continue
		}

		switch sub.Status {
		case models.PlanCompleted:
			completed++
		case models.PlanFailed:
			failed++
		}

		for _, f := range sub.FilesModified {
			ids := modifiers[f]
			if len(ids) == 0 {
				result.FilesModified = append(result.FilesModified, f)
			}
			if len(ids) == 0 || ids[len(ids)-1] != i {
				modifiers[f] = append(ids, i)
			}
		}
		result.ChangeIDs = append(result.ChangeIDs, sub.ChangeIDs...)
		result.TotalToolCalls += sub.TotalToolCalls
		result.TotalDurationMs = max(result.TotalDurationMs, sub.TotalDurationMs)
		result.Errors = append(result.Errors, sub.Errors...)
	}

	switch {
	case completed == len(subPlans):
		result.Status = models.PlanCompleted
	case failed == len(subPlans):
		result.Status = models.PlanFailed
	default:
		result.Status = models.PlanPartial
	}

	for _, f := range result.FilesModified {
		if len(modifiers[f]) < 2 {
			continue
		}
		ids := make([]string, 0, len(modifiers[f]))
		for _, i := range modifiers[f] {
			ids = append(ids, subPlans[i].ID)
		}
		result.Conflicts = append(result.Conflicts, models.FileConflict{File: f, SubPlanIDs: ids})
		result.Errors = append(result.Errors, ConflictError(f))
		c.logger.Error("file %s modified by sub-plans %v", f, ids)
	}

	c.logger.Log("plan %s: %d sub-plans -> %s (%d files, %d tool calls, %d conflicts)",
		planID(parent), len(subPlans), result.Status, len(result.FilesModified),
		result.TotalToolCalls, len(result.Conflicts))
	span.SetAttributes(
		attribute.String("plan.status", string(result.Status)),
		attribute.Int("conflicts.count", len(result.Conflicts)),
	)
	return result
}

// ConflictError formats the error reported for a file touched by multiple sub-plans.
func ConflictError(file string) string {
	return fmt.Sprintf("%s %s modified by multiple sub-plans", models.ConflictPrefix, file)
}

func planID(p *models.Plan) string {
	if p == nil {
		return "<nil>"
	}
	return p.ID
}
