package models

import (
	"slices"
	"time"
)

// ActionKind is the kind of work a step performs.
type ActionKind string

const (
	ActionDiscover ActionKind = "discover"
	ActionSearch   ActionKind = "search"
	ActionRead     ActionKind = "read"
	ActionWrite    ActionKind = "write"
	ActionEdit     ActionKind = "edit"
	ActionDiff     ActionKind = "diff"
	ActionUndo     ActionKind = "undo"
	ActionVerify   ActionKind = "verify"
	ActionReport   ActionKind = "report"
)

// Valid returns true if the action is a known value.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionDiscover, ActionSearch, ActionRead, ActionWrite, ActionEdit,
		ActionDiff, ActionUndo, ActionVerify, ActionReport:
		return true
	default:
		return false
	}
}

// Mutates returns true if the action changes its target files.
func (a ActionKind) Mutates() bool {
	return a == ActionWrite || a == ActionEdit || a == ActionUndo
}

// StepStatus represents the current state of a step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepRunning indicates the step is executing.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step failed.
	StepFailed StepStatus = "failed"
	// StepSkipped indicates the step was not run.
	StepSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepRunning, StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the step will not change state again.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// PlanStatus represents the current state of a plan or sub-plan.
type PlanStatus string

const (
	PlanProposed  PlanStatus = "proposed"
	PlanApproved  PlanStatus = "approved"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanPartial   PlanStatus = "partial"
	PlanFailed    PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanProposed, PlanApproved, PlanExecuting, PlanCompleted, PlanPartial, PlanFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if execution of the plan has finished.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanPartial || s == PlanFailed
}

// RiskLevel is the planner's estimate of how risky a plan is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid returns true if the risk level is a known value.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// Step is one unit of planned work.
// Steps are immutable once the plan is approved, except for Status.
type Step struct {
	// Number identifies the step within its plan. Numbers are unique but need not be contiguous.
	Number      int        `json:"number" yaml:"number"`
	Action      ActionKind `json:"action" yaml:"action"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	// TargetFiles are the paths the step reads or writes.
	TargetFiles []string `json:"target_files,omitempty" yaml:"target_files,omitempty"`
	// Tool is the tool or command the step invokes.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
	// Params is an opaque payload handed to the tool.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	// DependsOn lists step numbers that must complete before this step.
	DependsOn    []int      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Verification string     `json:"verification,omitempty" yaml:"verification,omitempty"`
	Status       StepStatus `json:"status" yaml:"status"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	c := s
	c.TargetFiles = slices.Clone(s.TargetFiles)
	c.DependsOn = slices.Clone(s.DependsOn)
	if s.Params != nil {
		c.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			c.Params[k] = v
		}
	}
	return c
}

// Provenance records who or what generated a plan.
type Provenance struct {
	GeneratedBy string  `json:"generated_by,omitempty" yaml:"generated_by,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Confidence  float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Plan is an ordered collection of steps plus metadata.
// A sub-plan has the same shape, with ParentID set and Steps restricted
// to one agent's subset.
type Plan struct {
	// ID is the storage key of this plan record.
	ID string `json:"id" yaml:"id"`
	// ParentID is set on sub-plans to the ID of the plan they were derived from.
	ParentID           string       `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	TaskID             string       `json:"task_id" yaml:"task_id"`
	CreatedBy          string       `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	LeadID             string       `json:"lead_id,omitempty" yaml:"lead_id,omitempty"`
	Summary            string       `json:"summary,omitempty" yaml:"summary,omitempty"`
	TaskDescription    string       `json:"task_description,omitempty" yaml:"task_description,omitempty"`
	EstimatedToolCalls int          `json:"estimated_tool_calls,omitempty" yaml:"estimated_tool_calls,omitempty"`
	Assignees          []string     `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	Provenance         Provenance   `json:"provenance" yaml:"provenance"`
	RiskLevel          RiskLevel    `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	SecurityTier       SecurityTier `json:"security_tier" yaml:"security_tier"`
	Status             PlanStatus   `json:"status" yaml:"status"`
	Steps              []Step       `json:"steps" yaml:"steps"`

	// Populated once execution finishes.
	FilesModified   []string   `json:"files_modified,omitempty" yaml:"files_modified,omitempty"`
	ChangeIDs       []string   `json:"change_ids,omitempty" yaml:"change_ids,omitempty"`
	TotalToolCalls  int        `json:"total_tool_calls,omitempty" yaml:"total_tool_calls,omitempty"`
	TotalDurationMs int64      `json:"total_duration_ms,omitempty" yaml:"total_duration_ms,omitempty"`
	Errors          []string   `json:"errors,omitempty" yaml:"errors,omitempty"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// IsSubPlan returns true if the plan was derived from a parent plan.
func (p *Plan) IsSubPlan() bool {
	return p.ParentID != ""
}

// StepNumbers returns the step numbers in plan order.
func (p *Plan) StepNumbers() []int {
	nums := make([]int, len(p.Steps))
	for i, s := range p.Steps {
		nums[i] = s.Number
	}
	return nums
}

// Step returns a pointer to the step with the given number.
func (p *Plan) Step(number int) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].Number == number {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the plan. State transitions operate on
// clones so that a record handed to another owner is never mutated.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Assignees = slices.Clone(p.Assignees)
	c.FilesModified = slices.Clone(p.FilesModified)
	c.ChangeIDs = slices.Clone(p.ChangeIDs)
	c.Errors = slices.Clone(p.Errors)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	if p.Steps != nil {
		c.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			c.Steps[i] = s.Clone()
		}
	}
	return &c
}
