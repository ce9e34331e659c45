// Package balance assigns file clusters to worker agents.
package balance

import (
	"slices"

	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// DefaultStepWeight is the load one step adds to an agent.
// An idle agent reaches full capacity after four steps.
const DefaultStepWeight = 0.25

// Balancer distributes clusters over agents, least-loaded first.
type Balancer struct {
	// StepWeight is the load added per step assigned. Zero or negative
	// values fall back to DefaultStepWeight.
	StepWeight float64
	// RequireTierClearance restricts candidates to agents whose security
	// tier covers the plan's tier.
	RequireTierClearance bool

	logger *logging.Logger
}

// New creates a Balancer with the default step weight.
func New(logger *logging.Logger) *Balancer {
	return &Balancer{
		StepWeight: DefaultStepWeight,
		logger:     logger.With("balance"),
	}
}

// Assign distributes clusters over agents with the default Balancer.
func Assign(clusters []models.FileCluster, agents []models.AgentCapability, plan *models.Plan) []models.AgentAssignment {
	return New(nil).Assign(clusters, agents, plan)
}

// Assign gives each cluster to the agent with the lowest running load.
//
// Running loads start at each agent's CurrentLoad. Clusters are taken largest
// first; equal sizes keep their original order. Ties between agents go to the
// one listed first. Assignments are returned in the order agents first
// received a cluster. No clusters or no agents yields an empty list.
func (b *Balancer) Assign(clusters []models.FileCluster, agents []models.AgentCapability, plan *models.Plan) []models.AgentAssignment {
	if len(clusters) == 0 || len(agents) == 0 {
		return []models.AgentAssignment{}
	}

	candidates := b.candidates(agents, plan)
	weight := b.StepWeight
	if weight <= 0 {
		weight = DefaultStepWeight
	}

	loads := make([]float64, len(candidates))
	for i, a := range candidates {
		loads[i] = a.CurrentLoad
	}

	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		return clusters[y].Size() - clusters[x].Size()
	})

	var assignments []models.AgentAssignment
	slot := make(map[int]int, len(candidates))
	for _, ci := range order {
		cluster := clusters[ci]
		best := 0
		for i := 1; i < len(loads); i++ {
			if loads[i] < loads[best] {
				best = i
			}
		}
		loads[best] += weight * float64(cluster.Size())

		idx, ok := slot[best]
		if !ok {
			idx = len(assignments)
			slot[best] = idx
			assignments = append(assignments, models.AgentAssignment{
				AgentID:   candidates[best].ID,
				AgentName: candidates[best].Name,
			})
		}
		addCluster(&assignments[idx], cluster)

		b.logger.Log("cluster %d (%d steps) -> agent %s, load now %.2f",
			cluster.Index, cluster.Size(), candidates[best].ID, loads[best])
	}

	return assignments
}

// candidates returns the agents eligible for the plan.
func (b *Balancer) candidates(agents []models.AgentCapability, plan *models.Plan) []models.AgentCapability {
	if !b.RequireTierClearance || plan == nil || plan.SecurityTier == "" {
		return agents
	}

	var cleared []models.AgentCapability
	for _, a := range agents {
		if a.SecurityTier.Allows(plan.SecurityTier) {
			cleared = append(cleared, a)
		}
	}
	if len(cleared) == 0 {
		b.logger.Warn("no agent cleared for tier %q; considering all %d agents", plan.SecurityTier, len(agents))
		return agents
	}
	return cleared
}

func addCluster(a *models.AgentAssignment, c models.FileCluster) {
	a.Clusters = append(a.Clusters, c)
	a.TotalSteps += c.Size()
	for _, f := range c.Files {
		if !slices.Contains(a.Files, f) {
			a.Files = append(a.Files, f)
		}
	}
}
