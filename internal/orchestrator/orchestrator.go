package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/fanout/internal/balance"
	"github.com/ShayCichocki/fanout/internal/consolidate"
	"github.com/ShayCichocki/fanout/internal/decompose"
	"github.com/ShayCichocki/fanout/internal/dispatch"
	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/internal/subplan"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// ErrNoAssignments indicates a non-empty plan could not be given to any agent.
var ErrNoAssignments = errors.New("no agent assignments")

// ErrNoEngine indicates Run was called without an execution engine.
var ErrNoEngine = errors.New("no execution engine configured")

// Schedule is the pre-execution view of a plan: how it splits and who runs what.
type Schedule struct {
	Clusters    []models.FileCluster     `json:"clusters"`
	Assignments []models.AgentAssignment `json:"assignments"`
	SubPlans    []*models.Plan           `json:"sub_plans"`
	// PrunedEdges is empty unless the partition invariant was broken.
	PrunedEdges []subplan.PrunedEdge `json:"pruned_edges,omitempty"`
}

// Outcome is the result of a full run.
type Outcome struct {
	// Parent is the finalized parent plan.
	Parent *models.Plan
	// SubPlans are the finished sub-plans, in dispatch order.
	SubPlans []*models.Plan
	Result   models.ConsolidatedResult
}

// Orchestrator runs plans through decompose, assign, build, dispatch and consolidate.
type Orchestrator struct {
	engine       dispatch.Engine
	partitioner  *decompose.Partitioner
	balancer     *balance.Balancer
	builder      *subplan.Builder
	dispatcher   *dispatch.Dispatcher
	consolidator *consolidate.Consolidator
	store        Store
	emitter      *EventEmitter
	logger       *logging.Logger
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.balancer == nil {
		o.balancer = balance.New(o.logger)
	}
	if o.dispatcher == nil {
		o.dispatcher = dispatch.New(o.logger)
	}

	return &Orchestrator{
		engine:       req.Engine,
		partitioner:  decompose.NewPartitioner(o.logger),
		balancer:     o.balancer,
		builder:      subplan.NewBuilder(o.logger),
		dispatcher:   o.dispatcher,
		consolidator: consolidate.New(o.logger),
		store:        o.store,
		emitter:      NewEventEmitter(o.eventBuffer, o.logger.With("orchestrator")),
		logger:       o.logger.With("orchestrator"),
	}
}

// Events returns the channel of run events.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.emitter.Events()
}

// DroppedEvents returns how many events were dropped because nobody drained Events.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// Close closes the event channel.
func (o *Orchestrator) Close() {
	o.emitter.Close()
}

// Plan decomposes the plan, assigns its clusters and builds sub-plans.
// It performs no execution and no I/O besides logging.
func (o *Orchestrator) Plan(plan *models.Plan, agents []models.AgentCapability) (*Schedule, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}

	clusters, err := o.partitioner.Decompose(plan)
	if err != nil {
		return nil, fmt.Errorf("decompose plan %s: %w", plan.ID, err)
	}
	if len(plan.Steps) == 0 {
		return &Schedule{
			Clusters:    clusters,
			Assignments: []models.AgentAssignment{},
			SubPlans:    []*models.Plan{},
		}, nil
	}

	assignments := o.balancer.Assign(clusters, agents, plan)
	if len(assignments) == 0 {
		return nil, fmt.Errorf("plan %s: %d clusters, %d agents: %w", plan.ID, len(clusters), len(agents), ErrNoAssignments)
	}

	sched := &Schedule{
		Clusters:    clusters,
		Assignments: assignments,
		SubPlans:    o.builder.Build(plan, assignments),
		PrunedEdges: subplan.PrunedDependencies(plan, assignments),
	}
	if len(sched.PrunedEdges) > 0 {
		o.logger.Error("plan %s: %d dependencies crossed sub-plan boundaries after partitioning", plan.ID, len(sched.PrunedEdges))
	}

	o.emitter.Emit(OrchestratorEvent{
		Type:    EventScheduleReady,
		PlanID:  plan.ID,
		Status:  plan.Status,
		Message: fmt.Sprintf("%d clusters over %d agents", len(clusters), len(assignments)),
	})
	return sched, nil
}

// Run schedules the plan, executes every sub-plan concurrently and returns
// the consolidated outcome. Sub-plan failures are reported in the outcome,
// not as an error. Store errors are returned alongside the outcome.
func (o *Orchestrator) Run(ctx context.Context, plan *models.Plan, agents []models.AgentCapability) (*Outcome, error) {
	if o.engine == nil {
		return nil, ErrNoEngine
	}

	sched, err := o.Plan(plan, agents)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	parent := plan.Clone()
	parent.Status = models.PlanExecuting

	if err := o.save(parent); err != nil {
		return nil, err
	}
	for _, sub := range sched.SubPlans {
		if err := o.save(sub); err != nil {
			return nil, err
		}
	}

	d := *o.dispatcher
	d.OnDispatch = func(sub *models.Plan) {
		o.emitter.Emit(OrchestratorEvent{
			Type:      EventSubPlanDispatched,
			PlanID:    parent.ID,
			SubPlanID: sub.ID,
			AgentID:   sub.LeadID,
			Status:    sub.Status,
		})
	}
	d.OnFinish = func(sub *models.Plan) {
		o.emitter.Emit(OrchestratorEvent{
			Type:      EventSubPlanFinished,
			PlanID:    parent.ID,
			SubPlanID: sub.ID,
			AgentID:   sub.LeadID,
			Status:    sub.Status,
			Duration:  time.Duration(sub.TotalDurationMs) * time.Millisecond,
		})
	}

	o.logger.Log("plan %s: dispatching %d sub-plans", parent.ID, len(sched.SubPlans))
	finished := d.Run(ctx, sched.SubPlans, o.engine)

	result := o.consolidator.Consolidate(ctx, parent, finished)
	for _, c := range result.Conflicts {
		o.emitter.Emit(OrchestratorEvent{
			Type:    EventConflictDetected,
			PlanID:  parent.ID,
			Status:  result.Status,
			Message: consolidate.ConflictError(c.File),
			Files:   []string{c.File},
		})
	}

	final := result.Apply(parent)

	var saveErrs []error
	for _, sub := range finished {
		if err := o.save(sub); err != nil {
			saveErrs = append(saveErrs, err)
		}
	}
	if err := o.save(final); err != nil {
		saveErrs = append(saveErrs, err)
	}

	o.logger.Log("plan %s: finalized as %s", final.ID, final.Status)
	o.emitter.Emit(OrchestratorEvent{
		Type:     EventPlanFinalized,
		PlanID:   final.ID,
		Status:   final.Status,
		Message:  fmt.Sprintf("%d files modified, %d errors", len(final.FilesModified), len(final.Errors)),
		Duration: time.Since(start),
	})

	return &Outcome{Parent: final, SubPlans: finished, Result: result}, errors.Join(saveErrs...)
}

func (o *Orchestrator) save(p *models.Plan) error {
	if o.store == nil || p == nil {
		return nil
	}
	if err := o.store.SavePlan(p); err != nil {
		o.logger.Error("save plan %s: %v", p.ID, err)
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}
