package orchestrator

import (
	"time"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventScheduleReady indicates clusters, assignments and sub-plans are built.
	EventScheduleReady EventType = "schedule_ready"
	// EventSubPlanDispatched indicates a sub-plan was handed to its engine.
	EventSubPlanDispatched EventType = "subplan_dispatched"
	// EventSubPlanFinished indicates a sub-plan reached a terminal status.
	EventSubPlanFinished EventType = "subplan_finished"
	// EventConflictDetected indicates two or more sub-plans modified the same file.
	EventConflictDetected EventType = "conflict_detected"
	// EventPlanFinalized indicates the parent plan has its consolidated result.
	EventPlanFinalized EventType = "plan_finalized"
)

// OrchestratorEvent represents an event emitted during a run.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the parent plan.
	PlanID string
	// SubPlanID is set for sub-plan events.
	SubPlanID string
	// AgentID is the sub-plan's agent, if applicable.
	AgentID string
	// Status is the plan or sub-plan status at the time of the event.
	Status models.PlanStatus
	// Message provides additional context about the event.
	Message string
	// Files lists the conflicting file for conflict events.
	Files []string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the sub-plan or plan duration, for finish events.
	Duration time.Duration
}
