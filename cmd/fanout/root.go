package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fanout/internal/balance"
	"github.com/ShayCichocki/fanout/internal/config"
	"github.com/ShayCichocki/fanout/internal/dispatch"
	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/internal/state"
	"github.com/ShayCichocki/fanout/pkg/models"
)

var debugLog bool

var rootCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Split plans into parallel sub-plans",
	Long: `fanout splits an approved plan into independent sub-plans, one per agent.

Steps that touch a common file, or depend on each other, always land in the
same sub-plan. Independent groups are spread over the least-loaded agents,
executed concurrently and consolidated back into one result for the parent.

Plan files are YAML or JSON documents with a "plan" and an "agents" section.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Write a debug log (logging.path, default .fanout/logs/fanout.log)")

	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// env is what every command needs: configuration, project root and logger.
type env struct {
	cfg    *config.Config
	root   string
	logger *logging.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	logger := logging.Nop()
	if debugLog {
		path := cfg.Logging.Path
		if path == "" {
			path = logging.DefaultPath(root)
		}
		if logger, err = logging.New(path); err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
	}

	return &env{cfg: cfg, root: root, logger: logger}, nil
}

func (e *env) close() {
	e.logger.Close()
}

func (e *env) balancer() *balance.Balancer {
	b := balance.New(e.logger)
	b.StepWeight = e.cfg.Balancer.StepWeight
	b.RequireTierClearance = e.cfg.Balancer.RequireTierClearance
	return b
}

func (e *env) dispatcher() *dispatch.Dispatcher {
	d := dispatch.New(e.logger)
	d.Timeout = e.cfg.Dispatch.Timeout
	return d
}

func (e *env) statePath() string {
	if e.cfg.State.Path != "" {
		return e.cfg.State.Path
	}
	return state.ProjectDBPath(e.root)
}

// openStore opens and migrates the state database.
func (e *env) openStore() (*state.DB, error) {
	db, err := state.Open(e.statePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// syntheticAgents returns n idle agents cleared for tier, used when a plan
// file lists no agents.
func syntheticAgents(n int, tier models.SecurityTier) []models.AgentCapability {
	agents := make([]models.AgentCapability, n)
	for i := range agents {
		id := fmt.Sprintf("agent-%d", i+1)
		agents[i] = models.AgentCapability{ID: id, Name: id, SecurityTier: tier}
	}
	return agents
}

func agentsFor(docAgents []models.AgentCapability, n int, tier models.SecurityTier) []models.AgentCapability {
	if len(docAgents) > 0 || n <= 0 {
		return docAgents
	}
	return syntheticAgents(n, tier)
}
