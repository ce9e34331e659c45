package models

import (
	"slices"
	"strings"
	"time"
)

// FileCluster is a maximal group of steps that must run on the same agent
// because they share files or dependency edges.
type FileCluster struct {
	Index int `json:"index"`
	// StepNumbers is kept in ascending order.
	StepNumbers []int `json:"step_numbers"`
	// Files is the deduplicated set of paths touched by the cluster's steps.
	Files []string `json:"files"`
	// ExternalDependencies lists steps outside the cluster that steps inside depend on.
	// It is empty for any correctly partitioned cluster.
	ExternalDependencies []int `json:"external_dependencies,omitempty"`
}

// Size returns the number of steps in the cluster.
func (c FileCluster) Size() int {
	return len(c.StepNumbers)
}

// Contains reports whether the step number belongs to the cluster.
func (c FileCluster) Contains(step int) bool {
	_, found := slices.BinarySearch(c.StepNumbers, step)
	return found
}

// ConflictPrefix starts every error that reports a file modified by more than one sub-plan.
const ConflictPrefix = "conflict:"

// IsConflictError reports whether an error string is a file-conflict report.
func IsConflictError(msg string) bool {
	return strings.HasPrefix(msg, ConflictPrefix)
}

// FileConflict names a file that more than one sub-plan modified.
type FileConflict struct {
	File       string   `json:"file"`
	SubPlanIDs []string `json:"sub_plan_ids"`
}

// ConsolidatedResult is the merged outcome of every sub-plan of a parent plan.
type ConsolidatedResult struct {
	Status          PlanStatus     `json:"status"`
	FilesModified   []string       `json:"files_modified"`
	ChangeIDs       []string       `json:"change_ids"`
	TotalToolCalls  int            `json:"total_tool_calls"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	Errors          []string       `json:"errors"`
	Conflicts       []FileConflict `json:"conflicts,omitempty"`
}

// Apply returns a copy of plan with the result written into its post-execution fields.
func (r ConsolidatedResult) Apply(plan *Plan) *Plan {
	out := plan.Clone()
	out.Status = r.Status
	out.FilesModified = slices.Clone(r.FilesModified)
	out.ChangeIDs = slices.Clone(r.ChangeIDs)
	out.TotalToolCalls = r.TotalToolCalls
	out.TotalDurationMs = r.TotalDurationMs
	out.Errors = slices.Clone(r.Errors)
	now := time.Now()
	out.CompletedAt = &now
	return out
}
