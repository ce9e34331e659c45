package models

// AgentCapability describes a worker agent available for assignment.
type AgentCapability struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id" yaml:"id"`
	// Name is the display name.
	Name string `json:"name" yaml:"name"`
	// Specialties are free-form tags such as "frontend" or "go".
	Specialties []string `json:"specialties,omitempty" yaml:"specialties,omitempty"`
	// CurrentLoad is the fraction of capacity already committed.
	// 0.0 is idle; values above 1.0 mean the agent is oversubscribed.
	CurrentLoad float64 `json:"current_load" yaml:"current_load"`
	// SecurityTier is the tier the agent is cleared to operate at.
	SecurityTier SecurityTier `json:"security_tier" yaml:"security_tier"`
}

// AgentAssignment is the set of clusters given to one agent.
type AgentAssignment struct {
	AgentID   string        `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	Clusters  []FileCluster `json:"clusters"`
	// TotalSteps is the step count across all clusters.
	TotalSteps int `json:"total_steps"`
	// Files is the deduplicated union of files the clusters touch.
	Files []string `json:"files"`
}

// StepNumbers returns the step numbers of every cluster in the assignment.
func (a AgentAssignment) StepNumbers() []int {
	nums := make([]int, 0, a.TotalSteps)
	for _, c := range a.Clusters {
		nums = append(nums, c.StepNumbers...)
	}
	return nums
}
