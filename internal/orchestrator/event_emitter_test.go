package orchestrator

import (
	"testing"
	"time"
)

func TestEventEmitter_DeliversAndStamps(t *testing.T) {
	e := NewEventEmitter(4, nil)

	e.Emit(OrchestratorEvent{Type: EventScheduleReady, PlanID: "p"})
	e.Close()

	var got []OrchestratorEvent
	for ev := range e.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestEventEmitter_KeepsTimestamp(t *testing.T) {
	e := NewEventEmitter(1, nil)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	e.Emit(OrchestratorEvent{Type: EventPlanFinalized, Timestamp: ts})
	if ev := <-e.Events(); !ev.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, ev.Timestamp)
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)

	e.Emit(OrchestratorEvent{Type: EventSubPlanDispatched})
	start := time.Now()
	e.Emit(OrchestratorEvent{Type: EventSubPlanFinished})

	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("expected Emit to wait before dropping, returned after %v", d)
	}
	if e.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped event, got %d", e.DroppedCount())
	}
	if ev := <-e.Events(); ev.Type != EventSubPlanDispatched {
		t.Errorf("expected first event to survive, got %s", ev.Type)
	}
}

func TestEventEmitter_EmitAfterClose(t *testing.T) {
	e := NewEventEmitter(1, nil)
	e.Close()
	e.Close()

	e.Emit(OrchestratorEvent{Type: EventConflictDetected})

	if _, ok := <-e.Events(); ok {
		t.Error("expected closed channel")
	}
	if e.DroppedCount() != 0 {
		t.Errorf("events after close are ignored, not dropped; got %d", e.DroppedCount())
	}
}
