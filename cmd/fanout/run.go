package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fanout/internal/engine"
	"github.com/ShayCichocki/fanout/internal/orchestrator"
	"github.com/ShayCichocki/fanout/internal/planfile"
	"github.com/ShayCichocki/fanout/pkg/models"
)

var (
	runNoStore bool
	runVerbose bool
	runAgents  int
)

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Execute a plan across agents",
	Long: `Split a plan into sub-plans, execute them concurrently and consolidate
the results into the parent plan.

Sub-plans run on the built-in dry-run engine: steps are walked in dependency
order and checked against the plan's security tier, but no tool is invoked.

The parent plan and its sub-plans are recorded in .fanout/state.db unless
--no-store is given. The command exits non-zero if the plan failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not record the run in the state database")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print progress events")
	runCmd.Flags().IntVar(&runAgents, "agents", 0, "Number of idle agents to use when the plan file lists none")
}

func runPlan(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	doc, err := planfile.Load(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dry := engine.NewDryRun(engine.NewActionGate(e.cfg.Engine.SystemTools...), e.logger)
	dry.StepDelay = e.cfg.Engine.StepDelay

	opts := []orchestrator.Option{
		orchestrator.WithLogger(e.logger),
		orchestrator.WithBalancer(e.balancer()),
		orchestrator.WithDispatcher(e.dispatcher()),
	}
	if !runNoStore {
		db, err := e.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, orchestrator.WithStore(db))
	}

	out := cmd.OutOrStdout()
	orch := orchestrator.New(orchestrator.RequiredConfig{Engine: dry}, opts...)
	wait := drainEvents(orch, func(ev orchestrator.OrchestratorEvent) {
		if runVerbose {
			renderEvent(out, ev)
		}
	})

	agents := agentsFor(doc.Agents, runAgents, doc.Plan.SecurityTier)
	outcome, err := orch.Run(ctx, &doc.Plan, agents)
	orch.Close()
	wait()

	if outcome == nil {
		return err
	}
	renderOutcome(out, outcome)
	if err != nil {
		return err
	}
	if outcome.Parent.Status == models.PlanFailed {
		return fmt.Errorf("plan %s failed", outcome.Parent.ID)
	}
	return nil
}
