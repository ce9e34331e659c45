package decompose

import "github.com/ShayCichocki/fanout/pkg/models"

// FileOverlap records two steps that declare the same target file.
type FileOverlap struct {
	StepA int
	StepB int
	File  string
}

// AnalyzeOverlaps checks every pair of steps for shared target files.
// It explains why steps were serialized into one cluster; Decompose does not need it.
func AnalyzeOverlaps(plan *models.Plan) []FileOverlap {
	if plan == nil {
		return nil
	}

	var overlaps []FileOverlap
	for i := 0; i < len(plan.Steps); i++ {
		for j := i + 1; j < len(plan.Steps); j++ {
			a, b := plan.Steps[i], plan.Steps[j]
			files := make(map[string]bool, len(a.TargetFiles))
			for _, f := range a.TargetFiles {
				if f = NormalizePath(f); f != "" {
					files[f] = true
				}
			}
			reported := make(map[string]bool)
			for _, f := range b.TargetFiles {
				f = NormalizePath(f)
				if files[f] && !reported[f] {
					reported[f] = true
					overlaps = append(overlaps, FileOverlap{StepA: a.Number, StepB: b.Number, File: f})
				}
			}
		}
	}
	return overlaps
}

// MaxParallelism returns how many agents could usefully run the plan at once:
// the number of clusters. It returns 0 for an empty or invalid plan.
func MaxParallelism(plan *models.Plan) int {
	clusters, err := Decompose(plan)
	if err != nil {
		return 0
	}
	return len(clusters)
}
