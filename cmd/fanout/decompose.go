package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fanout/internal/decompose"
	"github.com/ShayCichocki/fanout/internal/orchestrator"
	"github.com/ShayCichocki/fanout/internal/planfile"
)

var (
	decomposeExplain bool
	decomposeWatch   bool
	decomposeJSON    bool
	decomposeAgents  int
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose <plan-file>",
	Short: "Show how a plan splits into sub-plans",
	Long: `Partition a plan into independent clusters and assign them to agents
without executing anything.

  --explain  list the shared files that forced steps into one cluster
  --watch    recompute whenever the plan file changes
  --json     print the schedule as JSON`,
	Args: cobra.ExactArgs(1),
	RunE: runDecompose,
}

func init() {
	decomposeCmd.Flags().BoolVar(&decomposeExplain, "explain", false, "Show shared files between steps")
	decomposeCmd.Flags().BoolVar(&decomposeWatch, "watch", false, "Recompute when the plan file changes")
	decomposeCmd.Flags().BoolVar(&decomposeJSON, "json", false, "Print the schedule as JSON")
	decomposeCmd.Flags().IntVar(&decomposeAgents, "agents", 0, "Number of idle agents to use when the plan file lists none")
}

func runDecompose(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	orch := orchestrator.New(orchestrator.RequiredConfig{},
		orchestrator.WithLogger(e.logger),
		orchestrator.WithBalancer(e.balancer()),
	)
	wait := drainEvents(orch, nil)
	defer func() {
		orch.Close()
		wait()
	}()

	out := cmd.OutOrStdout()
	path := args[0]

	if !decomposeWatch {
		doc, err := planfile.Load(path)
		if err != nil {
			return err
		}
		return showSchedule(out, orch, doc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	show := func(doc *planfile.Document, err error) {
		if err == nil {
			err = showSchedule(out, orch, doc)
		}
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", color.RedString("error:"), err)
		}
		fmt.Fprintln(out, dimStyle.Render("watching "+path+" (ctrl-c to stop)"))
	}

	show(planfile.Load(path))
	return planfile.Watch(ctx, path, show)
}

func showSchedule(w io.Writer, orch *orchestrator.Orchestrator, doc *planfile.Document) error {
	agents := agentsFor(doc.Agents, decomposeAgents, doc.Plan.SecurityTier)
	sched, err := orch.Plan(&doc.Plan, agents)
	if err != nil {
		return err
	}

	if decomposeJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sched)
	}

	renderSchedule(w, &doc.Plan, sched)
	if decomposeExplain {
		renderOverlaps(w, decompose.AnalyzeOverlaps(&doc.Plan), decompose.MaxParallelism(&doc.Plan))
	}
	return nil
}

// drainEvents consumes orchestrator events until the channel closes, passing
// each to fn if it is non-nil. The returned func blocks until draining ends.
func drainEvents(orch *orchestrator.Orchestrator, fn func(orchestrator.OrchestratorEvent)) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range orch.Events() {
			if fn != nil {
				fn(ev)
			}
		}
	}()
	return func() { <-done }
}
