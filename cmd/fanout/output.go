package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/fanout/internal/decompose"
	"github.com/ShayCichocki/fanout/internal/orchestrator"
	"github.com/ShayCichocki/fanout/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// statusText colors a plan status the way the summary lines show it.
func statusText(s models.PlanStatus) string {
	var attr color.Attribute
	switch s {
	case models.PlanCompleted:
		attr = color.FgGreen
	case models.PlanPartial:
		attr = color.FgYellow
	case models.PlanFailed:
		attr = color.FgRed
	case models.PlanExecuting:
		attr = color.FgCyan
	default:
		attr = color.FgWhite
	}
	return color.New(attr).Sprint(string(s))
}

func stepStatusText(s models.StepStatus) string {
	switch s {
	case models.StepCompleted:
		return color.GreenString(string(s))
	case models.StepFailed:
		return color.RedString(string(s))
	case models.StepSkipped:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

// renderSchedule prints the clusters of a plan and who they went to.
func renderSchedule(w io.Writer, plan *models.Plan, sched *orchestrator.Schedule) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Plan %s: %d steps, %d clusters", plan.ID, len(plan.Steps), len(sched.Clusters))))

	for _, c := range sched.Clusters {
		fmt.Fprintf(w, "  cluster %d: steps [%s]\n", c.Index, joinInts(c.StepNumbers))
		if len(c.Files) > 0 {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render(strings.Join(c.Files, " ")))
		}
	}

	if len(sched.Assignments) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Assignments"))
	for i, a := range sched.Assignments {
		sub := ""
		if i < len(sched.SubPlans) {
			sub = sched.SubPlans[i].ID
		}
		fmt.Fprintf(w, "  %s: %d steps [%s] %s\n", a.AgentID, a.TotalSteps, joinInts(a.StepNumbers()), dimStyle.Render(sub))
	}

	for _, e := range sched.PrunedEdges {
		fmt.Fprintf(w, "  %s step %d lost its dependency on step %d\n", color.YellowString("warning:"), e.Step, e.DependsOn)
	}
}

// renderOverlaps prints the shared files that forced steps together.
func renderOverlaps(w io.Writer, overlaps []decompose.FileOverlap, parallelism int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Shared files (max parallelism %d)", parallelism)))
	if len(overlaps) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	for _, o := range overlaps {
		fmt.Fprintf(w, "  steps %d and %d share %s\n", o.StepA, o.StepB, o.File)
	}
}

// renderOutcome prints the consolidated result of a run.
func renderOutcome(w io.Writer, out *orchestrator.Outcome) {
	for _, sub := range out.SubPlans {
		fmt.Fprintf(w, "  %s %s %s (%d tool calls, %s)\n",
			sub.LeadID, dimStyle.Render(sub.ID), statusText(sub.Status), sub.TotalToolCalls,
			formatDuration(time.Duration(sub.TotalDurationMs)*time.Millisecond))
	}

	r := out.Result
	lines := []string{
		fmt.Sprintf("Plan %s: %s", out.Parent.ID, statusText(r.Status)),
		fmt.Sprintf("Files modified: %d", len(r.FilesModified)),
		fmt.Sprintf("Changes: %d", len(r.ChangeIDs)),
		fmt.Sprintf("Tool calls: %d", r.TotalToolCalls),
		fmt.Sprintf("Duration: %s", formatDuration(time.Duration(r.TotalDurationMs)*time.Millisecond)),
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))

	for _, f := range r.FilesModified {
		fmt.Fprintf(w, "  %s\n", f)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", color.RedString("error:"), e)
	}
}

// renderEvent prints one orchestrator event as a progress line.
func renderEvent(w io.Writer, ev orchestrator.OrchestratorEvent) {
	ts := dimStyle.Render(ev.Timestamp.Format("15:04:05"))
	switch ev.Type {
	case orchestrator.EventSubPlanDispatched:
		fmt.Fprintf(w, "%s dispatched %s to %s\n", ts, ev.SubPlanID, ev.AgentID)
	case orchestrator.EventSubPlanFinished:
		fmt.Fprintf(w, "%s %s finished %s in %s\n", ts, ev.SubPlanID, statusText(ev.Status), formatDuration(ev.Duration))
	case orchestrator.EventConflictDetected:
		fmt.Fprintf(w, "%s %s\n", ts, color.YellowString(ev.Message))
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, ev.Type, ev.Message)
	}
}

// renderPlanList prints stored top-level plans.
func renderPlanList(w io.Writer, plans []models.Plan) {
	if len(plans) == 0 {
		fmt.Fprintln(w, "No plans recorded. Run 'fanout run <plan-file>' to start.")
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Plans"))
	for _, p := range plans {
		fmt.Fprintf(w, "  %s %s %d steps (%s ago)\n", p.ID, statusText(p.Status), len(p.Steps), formatDuration(time.Since(p.CreatedAt)))
	}
}

// renderPlanDetail prints one stored plan with its sub-plans.
func renderPlanDetail(w io.Writer, p *models.Plan, subs []models.Plan) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Plan %s", p.ID)))
	fmt.Fprintf(w, "  Status: %s\n", statusText(p.Status))
	if p.Summary != "" {
		fmt.Fprintf(w, "  Summary: %s\n", p.Summary)
	}
	fmt.Fprintf(w, "  Tier: %s\n", p.SecurityTier)
	fmt.Fprintf(w, "  Steps: %d\n", len(p.Steps))
	fmt.Fprintf(w, "  Files modified: %d\n", len(p.FilesModified))
	for _, e := range p.Errors {
		fmt.Fprintf(w, "  %s %s\n", color.RedString("error:"), e)
	}

	if len(subs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Sub-plans"))
	for _, s := range subs {
		fmt.Fprintf(w, "  %s %s %s\n", s.ID, s.LeadID, statusText(s.Status))
		for _, st := range s.Steps {
			fmt.Fprintf(w, "    step %d %s %s\n", st.Number, st.Action, stepStatusText(st.Status))
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
