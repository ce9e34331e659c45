package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/fanout/pkg/models"
)

func cluster(index int, files []string, steps ...int) models.FileCluster {
	return models.FileCluster{Index: index, StepNumbers: steps, Files: files}
}

func agent(id string, load float64) models.AgentCapability {
	return models.AgentCapability{ID: id, Name: "agent " + id, CurrentLoad: load, SecurityTier: models.TierWrite}
}

func TestAssign_EmptyInputs(t *testing.T) {
	agents := []models.AgentCapability{agent("a", 0)}
	clusters := []models.FileCluster{cluster(0, nil, 1)}

	got := Assign(nil, agents, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = Assign(clusters, nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAssign_OneClusterGoesToLeastLoaded(t *testing.T) {
	agents := []models.AgentCapability{agent("busy", 0.9), agent("idle", 0.1), agent("mid", 0.5)}
	clusters := []models.FileCluster{cluster(0, []string{"a.go"}, 1, 2)}

	got := Assign(clusters, agents, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "idle", got[0].AgentID)
	assert.Equal(t, "agent idle", got[0].AgentName)
	assert.Equal(t, 2, got[0].TotalSteps)
}

func TestAssign_SingleAgentTakesEverything(t *testing.T) {
	clusters := []models.FileCluster{
		cluster(0, []string{"a.go"}, 1, 2),
		cluster(1, []string{"b.go", "a.go"}, 3),
		cluster(2, []string{"c.go"}, 4, 5, 6),
	}

	got := Assign(clusters, []models.AgentCapability{agent("solo", 0.4)}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].TotalSteps)
	assert.Len(t, got[0].Clusters, 3)
	assert.ElementsMatch(t, []string{"a.go", "b.go", "c.go"}, got[0].Files)
}

func TestAssign_TiesBreakByAgentOrder(t *testing.T) {
	agents := []models.AgentCapability{agent("first", 0), agent("second", 0)}
	clusters := []models.FileCluster{cluster(0, nil, 1)}

	got := Assign(clusters, agents, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].AgentID)
}

func TestAssign_LargestClusterFirst(t *testing.T) {
	agents := []models.AgentCapability{agent("a", 0), agent("b", 0)}
	clusters := []models.FileCluster{
		cluster(0, nil, 1),
		cluster(1, nil, 2, 3, 4),
		cluster(2, nil, 5),
	}

	got := Assign(clusters, agents, nil)
	require.Len(t, got, 2)

	// The three-step cluster is placed first, on agent a. Both singletons
	// then fit under b's lower load: 0.25 after the first, still below 0.75.
	assert.Equal(t, "a", got[0].AgentID)
	assert.Equal(t, []int{2, 3, 4}, got[0].StepNumbers())
	assert.Equal(t, "b", got[1].AgentID)
	assert.Equal(t, []int{1, 5}, got[1].StepNumbers())
}

func TestAssign_EqualClustersSpreadAcrossAgents(t *testing.T) {
	agents := []models.AgentCapability{agent("a1", 0.1), agent("a2", 0.2), agent("a3", 0.3)}
	clusters := []models.FileCluster{
		cluster(0, []string{"src/auth/login.go"}, 1, 2),
		cluster(1, []string{"src/api/routes.go"}, 3, 4),
		cluster(2, []string{"src/utils/strings.go"}, 5, 6),
	}

	got := Assign(clusters, agents, nil)
	require.Len(t, got, 3)

	seen := map[string]bool{}
	for _, a := range got {
		assert.Len(t, a.Clusters, 1)
		assert.Equal(t, 2, a.TotalSteps)
		seen[a.AgentID] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, "a1", got[0].AgentID)
	assert.Equal(t, 0, got[0].Clusters[0].Index)
}

func TestAssign_MoreClustersThanAgents(t *testing.T) {
	agents := []models.AgentCapability{agent("a", 0), agent("b", 0)}
	var clusters []models.FileCluster
	for i := 0; i < 5; i++ {
		clusters = append(clusters, cluster(i, nil, i+1))
	}

	got := Assign(clusters, agents, nil)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].TotalSteps+got[1].TotalSteps)
	assert.Equal(t, []int{1, 3, 5}, got[0].StepNumbers())
	assert.Equal(t, []int{2, 4}, got[1].StepNumbers())
}

func TestAssign_CustomStepWeight(t *testing.T) {
	agents := []models.AgentCapability{agent("a", 0), agent("b", 1.5)}
	clusters := []models.FileCluster{cluster(0, nil, 1, 2), cluster(1, nil, 3)}

	b := New(nil)
	b.StepWeight = 1
	got := b.Assign(clusters, agents, nil)

	// a: 0 -> 2 after the first cluster, so the second goes to b (1.5).
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].AgentID)
	assert.Equal(t, "b", got[1].AgentID)

	b.StepWeight = 0.25
	got = b.Assign(clusters, agents, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].TotalSteps)
}

func TestAssign_TierClearance(t *testing.T) {
	reader := models.AgentCapability{ID: "reader", SecurityTier: models.TierRead}
	writer := models.AgentCapability{ID: "writer", CurrentLoad: 0.8, SecurityTier: models.TierWrite}
	plan := &models.Plan{SecurityTier: models.TierWrite}
	clusters := []models.FileCluster{cluster(0, nil, 1)}

	b := New(nil)
	got := b.Assign(clusters, []models.AgentCapability{reader, writer}, plan)
	require.Len(t, got, 1)
	assert.Equal(t, "reader", got[0].AgentID, "tier is only a hint unless clearance is required")

	b.RequireTierClearance = true
	got = b.Assign(clusters, []models.AgentCapability{reader, writer}, plan)
	require.Len(t, got, 1)
	assert.Equal(t, "writer", got[0].AgentID)

	plan.SecurityTier = models.TierSystem
	got = b.Assign(clusters, []models.AgentCapability{reader, writer}, plan)
	require.Len(t, got, 1)
	assert.Equal(t, "reader", got[0].AgentID, "falls back to every agent when none is cleared")
}

func TestAssign_DoesNotMutateInputs(t *testing.T) {
	agents := []models.AgentCapability{agent("a", 0.3)}
	clusters := []models.FileCluster{cluster(0, []string{"x.go"}, 1)}

	Assign(clusters, agents, nil)
	assert.Equal(t, 0.3, agents[0].CurrentLoad)
	assert.Equal(t, 0, clusters[0].Index)
}
