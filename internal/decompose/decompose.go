// Package decompose partitions a plan's steps into independent file clusters.
//
// Two steps land in the same cluster when they share a target file or are
// connected by a DependsOn edge in either direction. Each cluster can then be
// handed to a different agent without two agents touching the same file.
package decompose

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ShayCichocki/fanout/internal/graph"
	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// ErrStructuralViolation indicates a dependency edge crosses a cluster boundary
// after partitioning. The partition is rejected when this happens.
var ErrStructuralViolation = errors.New("structural violation")

// ErrDuplicateStep indicates two steps in a plan share a step number.
var ErrDuplicateStep = errors.New("duplicate step number")

// Partitioner builds file clusters from a plan.
type Partitioner struct {
	logger *logging.Logger
}

// NewPartitioner creates a Partitioner. A nil logger disables logging.
func NewPartitioner(logger *logging.Logger) *Partitioner {
	return &Partitioner{logger: logger.With("decompose")}
}

// Decompose partitions plan into file clusters using a nop logger.
func Decompose(plan *models.Plan) ([]models.FileCluster, error) {
	return NewPartitioner(nil).Decompose(plan)
}

// Decompose partitions the plan's steps into disjoint clusters.
//
// Clusters are ordered by the first appearance of one of their steps in the
// plan. Within a cluster, step numbers are ascending and files are listed in
// first-seen order. An empty plan yields an empty list.
func (p *Partitioner) Decompose(plan *models.Plan) ([]models.FileCluster, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return []models.FileCluster{}, nil
	}

	sets := graph.NewDisjointSet(len(plan.Steps))
	byNumber := make(map[int]*models.Step, len(plan.Steps))
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if !sets.Add(step.Number) {
			p.logger.Error("step %d appears more than once in plan %s", step.Number, plan.ID)
			return nil, fmt.Errorf("%w: %d", ErrDuplicateStep, step.Number)
		}
		byNumber[step.Number] = step
	}

	// Shared-file edges: join each step with the first step seen touching the same file.
	firstToucher := make(map[string]int)
	for _, step := range plan.Steps {
		for _, f := range step.TargetFiles {
			f = NormalizePath(f)
			if f == "" {
				continue
			}
			if first, ok := firstToucher[f]; ok {
				sets.Union(first, step.Number)
				continue
			}
			firstToucher[f] = step.Number
		}
	}

	// Dependency edges. Unknown step numbers are left unjoined and surface
	// below as external dependencies.
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			sets.Union(step.Number, dep)
		}
	}

	groups := sets.Groups()
	owner := make(map[int]int, len(plan.Steps))
	clusters := make([]models.FileCluster, len(groups))
	for i, members := range groups {
		seen := make(map[string]bool)
		var files []string
		for _, n := range members {
			owner[n] = i
			for _, f := range byNumber[n].TargetFiles {
				f = NormalizePath(f)
				if f == "" || seen[f] {
					continue
				}
				seen[f] = true
				files = append(files, f)
			}
		}
		clusters[i] = models.FileCluster{
			Index:       i,
			StepNumbers: slices.Sorted(slices.Values(members)),
			Files:       files,
		}
	}

	var violations []error
	for i := range clusters {
		ext := externalDependencies(clusters[i], byNumber, owner)
		if len(ext) == 0 {
			continue
		}
		clusters[i].ExternalDependencies = ext
		p.logger.Error("cluster %d (steps %v) depends on steps %v outside it", i, clusters[i].StepNumbers, ext)
		violations = append(violations,
			fmt.Errorf("%w: cluster %d (steps %v) depends on steps %v outside it",
				ErrStructuralViolation, i, clusters[i].StepNumbers, ext))
	}
	if len(violations) > 0 {
		return nil, errors.Join(violations...)
	}

	p.logger.Log("plan %s: %d steps in %d clusters", plan.ID, len(plan.Steps), len(clusters))
	return clusters, nil
}

// externalDependencies lists the dependencies of the cluster's steps that are
// owned by another cluster, or by no cluster at all.
func externalDependencies(c models.FileCluster, byNumber map[int]*models.Step, owner map[int]int) []int {
	var ext []int
	for _, n := range c.StepNumbers {
		for _, dep := range byNumber[n].DependsOn {
			if idx, ok := owner[dep]; ok && idx == c.Index {
				continue
			}
			if !slices.Contains(ext, dep) {
				ext = append(ext, dep)
			}
		}
	}
	slices.Sort(ext)
	return ext
}

// NormalizePath converts a target path into the form used for comparison:
// forward slashes, cleaned, no leading "./". Blank paths normalize to "".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}
