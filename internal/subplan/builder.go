// Package subplan projects a parent plan onto agent assignments.
package subplan

import (
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// PrunedEdge is a dependency dropped because it pointed outside the sub-plan.
// Partitioned plans never produce one; seeing one means the partition
// invariant was broken upstream.
type PrunedEdge struct {
	AgentID   string `json:"agent_id"`
	Step      int    `json:"step"`
	DependsOn int    `json:"depends_on"`
}

// Builder creates sub-plans from assignments.
type Builder struct {
	logger *logging.Logger
	newID  func() string
	now    func() time.Time
}

// NewBuilder creates a Builder. A nil logger disables logging.
func NewBuilder(logger *logging.Logger) *Builder {
	return &Builder{
		logger: logger.With("subplan"),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// CreateSubPlans builds one sub-plan per assignment with a nop logger.
func CreateSubPlans(parent *models.Plan, assignments []models.AgentAssignment) []*models.Plan {
	return NewBuilder(nil).Build(parent, assignments)
}

// Build returns one sub-plan per assignment, in assignment order.
//
// Each sub-plan carries the parent's metadata, with the assigned agent as
// lead and sole assignee. Its steps are the parent's steps that belong to the
// assignment's clusters, in parent order, reset to pending. DependsOn entries
// that point outside the sub-plan are dropped and logged as warnings.
func (b *Builder) Build(parent *models.Plan, assignments []models.AgentAssignment) []*models.Plan {
	if parent == nil {
		return []*models.Plan{}
	}

	subPlans := make([]*models.Plan, 0, len(assignments))
	for _, a := range assignments {
		sub, pruned := b.project(parent, a)
		for _, e := range pruned {
			b.logger.Warn("sub-plan %s (agent %s): dropped dependency %d -> %d crossing sub-plan boundary",
				sub.ID, e.AgentID, e.Step, e.DependsOn)
		}
		b.logger.Log("sub-plan %s: agent %s, steps %v", sub.ID, a.AgentID, sub.StepNumbers())
		subPlans = append(subPlans, sub)
	}
	return subPlans
}

// PrunedDependencies reports every dependency edge that sub-plan construction
// would drop for these assignments.
func PrunedDependencies(parent *models.Plan, assignments []models.AgentAssignment) []PrunedEdge {
	if parent == nil {
		return nil
	}
	b := NewBuilder(nil)
	var all []PrunedEdge
	for _, a := range assignments {
		_, pruned := b.project(parent, a)
		all = append(all, pruned...)
	}
	return all
}

func (b *Builder) project(parent *models.Plan, a models.AgentAssignment) (*models.Plan, []PrunedEdge) {
	owned := make(map[int]bool, a.TotalSteps)
	for _, n := range a.StepNumbers() {
		owned[n] = true
	}

	sub := &models.Plan{
		ID:                 b.newID(),
		ParentID:           parent.ID,
		TaskID:             parent.TaskID,
		CreatedBy:          parent.CreatedBy,
		LeadID:             a.AgentID,
		Summary:            parent.Summary,
		TaskDescription:    parent.TaskDescription,
		EstimatedToolCalls: parent.EstimatedToolCalls,
		Assignees:          []string{a.AgentID},
		Provenance:         parent.Provenance,
		RiskLevel:          parent.RiskLevel,
		SecurityTier:       parent.SecurityTier,
		Status:             models.PlanApproved,
		CreatedAt:          b.now(),
	}

	var pruned []PrunedEdge
	for _, s := range parent.Steps {
		if !owned[s.Number] {
			continue
		}
		step := s.Clone()
		step.Status = models.StepPending
		step.DependsOn = nil
		for _, dep := range s.DependsOn {
			if owned[dep] {
				step.DependsOn = append(step.DependsOn, dep)
				continue
			}
			pruned = append(pruned, PrunedEdge{AgentID: a.AgentID, Step: s.Number, DependsOn: dep})
		}
		sub.Steps = append(sub.Steps, step)
	}
	return sub, pruned
}
