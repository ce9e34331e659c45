// Package orchestrator wires the fan-out pipeline together.
//
// A run moves a plan through four stages:
//   - Decompose: partition steps into file clusters
//   - Assign: spread clusters over agents, least-loaded first
//   - Build: project the plan onto each assignment as a sub-plan
//   - Dispatch and consolidate: run sub-plans concurrently, then merge results
//
// Example usage:
//
//	orch := orchestrator.New(
//		orchestrator.RequiredConfig{Engine: engine.NewDryRun(gate, logger)},
//		orchestrator.WithLogger(logger),
//		orchestrator.WithStore(db),
//	)
//	outcome, err := orch.Run(ctx, plan, agents)
package orchestrator
