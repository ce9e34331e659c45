package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/ShayCichocki/fanout/internal/balance"
	"github.com/ShayCichocki/fanout/internal/decompose"
	"github.com/ShayCichocki/fanout/internal/dispatch"
	"github.com/ShayCichocki/fanout/internal/engine"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// sixStepPlan has three independent two-step groups: auth, api and utils.
func sixStepPlan() *models.Plan {
	return &models.Plan{
		ID:              "plan-1",
		TaskID:          "task-1",
		TaskDescription: "harden auth, api and utils",
		RiskLevel:       models.RiskMedium,
		SecurityTier:    models.TierWrite,
		Status:          models.PlanApproved,
		Steps: []models.Step{
			{Number: 1, Action: models.ActionRead, TargetFiles: []string{"src/auth/login.go"}},
			{Number: 2, Action: models.ActionEdit, TargetFiles: []string{"src/auth/login.go"}, DependsOn: []int{1}},
			{Number: 3, Action: models.ActionRead, TargetFiles: []string{"src/api/routes.go"}},
			{Number: 4, Action: models.ActionEdit, TargetFiles: []string{"src/api/routes.go"}, DependsOn: []int{3}},
			{Number: 5, Action: models.ActionRead, TargetFiles: []string{"src/utils/strings.go"}},
			{Number: 6, Action: models.ActionEdit, TargetFiles: []string{"src/utils/strings.go"}, DependsOn: []int{5}},
		},
	}
}

func threeAgents() []models.AgentCapability {
	return []models.AgentCapability{
		{ID: "agent-1", Name: "one", CurrentLoad: 0.1, SecurityTier: models.TierWrite},
		{ID: "agent-2", Name: "two", CurrentLoad: 0.2, SecurityTier: models.TierWrite},
		{ID: "agent-3", Name: "three", CurrentLoad: 0.3, SecurityTier: models.TierWrite},
	}
}

type memStore struct {
	mu    sync.Mutex
	saved map[string][]models.PlanStatus
	err   error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]models.PlanStatus)}
}

func (s *memStore) SavePlan(p *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved[p.ID] = append(s.saved[p.ID], p.Status)
	return nil
}

func drain(o *Orchestrator) []OrchestratorEvent {
	o.Close()
	var events []OrchestratorEvent
	for e := range o.Events() {
		events = append(events, e)
	}
	return events
}

func TestRun_EndToEndSixStepsThreeAgents(t *testing.T) {
	store := newMemStore()
	o := New(
		RequiredConfig{Engine: engine.NewDryRun(engine.NewActionGate(), nil)},
		WithStore(store),
	)

	plan := sixStepPlan()
	sched, err := o.Plan(plan, threeAgents())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(sched.Clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(sched.Clusters))
	}
	for i, c := range sched.Clusters {
		if c.Size() != 2 {
			t.Errorf("cluster %d has %d steps, want 2", i, c.Size())
		}
	}
	if len(sched.Assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(sched.Assignments))
	}
	agentsUsed := map[string]bool{}
	for _, a := range sched.Assignments {
		if len(a.Clusters) != 1 {
			t.Errorf("agent %s got %d clusters, want 1", a.AgentID, len(a.Clusters))
		}
		agentsUsed[a.AgentID] = true
	}
	if len(agentsUsed) != 3 {
		t.Errorf("expected every agent to get a cluster, got %v", agentsUsed)
	}

	var covered []int
	for _, sub := range sched.SubPlans {
		if len(sub.Steps) != 2 {
			t.Errorf("sub-plan %s has %d steps, want 2", sub.ID, len(sub.Steps))
		}
		covered = append(covered, sub.StepNumbers()...)
	}
	slices.Sort(covered)
	if !slices.Equal(covered, []int{1, 2, 3, 4, 5, 6}) {
		t.Errorf("sub-plans cover %v, want 1..6 exactly once", covered)
	}
	if len(sched.PrunedEdges) != 0 {
		t.Errorf("unexpected pruned edges: %v", sched.PrunedEdges)
	}

	outcome, err := o.Run(context.Background(), plan, threeAgents())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if outcome.Result.Status != models.PlanCompleted {
		t.Fatalf("status = %s, want completed (errors: %v)", outcome.Result.Status, outcome.Result.Errors)
	}
	sum := 0
	for _, sub := range outcome.SubPlans {
		if sub.Status != models.PlanCompleted {
			t.Errorf("sub-plan %s status %s", sub.ID, sub.Status)
		}
		sum += sub.TotalToolCalls
	}
	if outcome.Result.TotalToolCalls != sum || sum != 6 {
		t.Errorf("TotalToolCalls = %d, sub-plan sum %d, want 6", outcome.Result.TotalToolCalls, sum)
	}
	if len(outcome.Result.FilesModified) != 3 {
		t.Errorf("FilesModified = %v", outcome.Result.FilesModified)
	}
	if len(outcome.Result.ChangeIDs) != 3 {
		t.Errorf("expected one change per edit step, got %v", outcome.Result.ChangeIDs)
	}

	if outcome.Parent.Status != models.PlanCompleted || outcome.Parent.CompletedAt == nil {
		t.Errorf("parent not finalized: %s", outcome.Parent.Status)
	}
	if plan.Status != models.PlanApproved {
		t.Errorf("input plan mutated to %s", plan.Status)
	}

	got := store.saved[plan.ID]
	want := []models.PlanStatus{models.PlanExecuting, models.PlanCompleted}
	if !slices.Equal(got, want) {
		t.Errorf("parent saves = %v, want %v", got, want)
	}
	for _, sub := range outcome.SubPlans {
		if s := store.saved[sub.ID]; !slices.Equal(s, []models.PlanStatus{models.PlanApproved, models.PlanCompleted}) {
			t.Errorf("sub-plan %s saves = %v", sub.ID, s)
		}
	}
}

func TestRun_Events(t *testing.T) {
	o := New(RequiredConfig{Engine: engine.NewDryRun(nil, nil)})

	if _, err := o.Run(context.Background(), sixStepPlan(), threeAgents()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	counts := map[EventType]int{}
	events := drain(o)
	for _, e := range events {
		counts[e.Type]++
		if e.Timestamp.IsZero() {
			t.Errorf("event %s has no timestamp", e.Type)
		}
	}
	// Plan is called once inside Run.
	if counts[EventScheduleReady] != 1 || counts[EventSubPlanDispatched] != 3 ||
		counts[EventSubPlanFinished] != 3 || counts[EventPlanFinalized] != 1 {
		t.Errorf("unexpected event counts: %v", counts)
	}
	if counts[EventConflictDetected] != 0 {
		t.Errorf("unexpected conflicts")
	}
	if last := events[len(events)-1]; last.Type != EventPlanFinalized || last.Status != models.PlanCompleted {
		t.Errorf("last event = %+v", last)
	}
}

// sloppyEngine modifies a file it never declared, to provoke a conflict.
type sloppyEngine struct{}

func (sloppyEngine) Execute(ctx context.Context, p *models.Plan) (*models.Plan, error) {
	p.Status = models.PlanCompleted
	p.FilesModified = append(p.FilesModified, "go.mod")
	p.TotalToolCalls = len(p.Steps)
	return p, nil
}

func TestRun_ConflictDetected(t *testing.T) {
	o := New(RequiredConfig{Engine: sloppyEngine{}})

	outcome, err := o.Run(context.Background(), sixStepPlan(), threeAgents())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(outcome.Result.Conflicts) != 1 || outcome.Result.Conflicts[0].File != "go.mod" {
		t.Fatalf("conflicts = %+v", outcome.Result.Conflicts)
	}
	if len(outcome.Result.Conflicts[0].SubPlanIDs) != 3 {
		t.Errorf("expected all three sub-plans in the conflict, got %v", outcome.Result.Conflicts[0].SubPlanIDs)
	}

	var conflictEvents int
	for _, e := range drain(o) {
		if e.Type == EventConflictDetected {
			conflictEvents++
		}
	}
	if conflictEvents != 1 {
		t.Errorf("conflict events = %d, want 1", conflictEvents)
	}
}

func TestRun_PartialWhenOneSubPlanFails(t *testing.T) {
	eng := dispatch.EngineFunc(func(ctx context.Context, p *models.Plan) (*models.Plan, error) {
		if p.LeadID == "agent-2" {
			return nil, errors.New("agent crashed")
		}
		p.Status = models.PlanCompleted
		return p, nil
	})

	outcome, err := New(RequiredConfig{Engine: eng}).Run(context.Background(), sixStepPlan(), threeAgents())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Result.Status != models.PlanPartial {
		t.Errorf("status = %s, want partial", outcome.Result.Status)
	}
	if len(outcome.Result.Errors) != 1 {
		t.Errorf("errors = %v", outcome.Result.Errors)
	}
}

func TestPlan_Errors(t *testing.T) {
	o := New(RequiredConfig{})

	if _, err := o.Plan(sixStepPlan(), nil); !errors.Is(err, ErrNoAssignments) {
		t.Errorf("no agents: got %v, want ErrNoAssignments", err)
	}

	bad := sixStepPlan()
	bad.Steps[0].DependsOn = []int{42}
	if _, err := o.Plan(bad, threeAgents()); !errors.Is(err, decompose.ErrStructuralViolation) {
		t.Errorf("unknown dependency: got %v, want ErrStructuralViolation", err)
	}

	if _, err := o.Plan(nil, threeAgents()); err == nil {
		t.Error("nil plan should fail")
	}

	sched, err := o.Plan(&models.Plan{ID: "empty"}, nil)
	if err != nil {
		t.Fatalf("empty plan: %v", err)
	}
	if len(sched.Clusters) != 0 || len(sched.SubPlans) != 0 {
		t.Errorf("empty plan produced %+v", sched)
	}

	if _, err := o.Run(context.Background(), sixStepPlan(), threeAgents()); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Run without engine: got %v", err)
	}
}

func TestRun_EmptyPlanFails(t *testing.T) {
	o := New(RequiredConfig{Engine: engine.NewDryRun(nil, nil)})

	outcome, err := o.Run(context.Background(), &models.Plan{ID: "empty"}, threeAgents())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Result.Status != models.PlanFailed {
		t.Errorf("status = %s, want failed", outcome.Result.Status)
	}
}

func TestRun_StoreErrorBeforeDispatch(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")

	o := New(RequiredConfig{Engine: engine.NewDryRun(nil, nil)}, WithStore(store))
	if _, err := o.Run(context.Background(), sixStepPlan(), threeAgents()); err == nil {
		t.Error("expected store error")
	}
}

func TestWithBalancer(t *testing.T) {
	agents := []models.AgentCapability{
		{ID: "idle", CurrentLoad: 0},
		{ID: "busy", CurrentLoad: 1},
	}

	// Default weight: three two-step clusters lift idle from 0 to 1.0 at most,
	// so busy never drops below it.
	sched, err := New(RequiredConfig{}).Plan(sixStepPlan(), agents)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(sched.Assignments) != 1 || sched.Assignments[0].AgentID != "idle" {
		t.Errorf("default weight assignments = %+v", sched.Assignments)
	}

	b := balance.New(nil)
	b.StepWeight = 10
	sched, err = New(RequiredConfig{}, WithBalancer(b)).Plan(sixStepPlan(), agents)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(sched.Assignments) != 2 || len(sched.Assignments[0].Clusters) != 2 {
		t.Errorf("heavy weight assignments = %+v", sched.Assignments)
	}
}
