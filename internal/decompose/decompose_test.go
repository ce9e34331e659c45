package decompose

import (
	"errors"
	"math/rand"
	"reflect"
	"slices"
	"testing"

	"github.com/ShayCichocki/fanout/pkg/models"
)

func step(n int, files []string, deps ...int) models.Step {
	return models.Step{Number: n, Action: models.ActionEdit, TargetFiles: files, DependsOn: deps}
}

func TestDecompose_EmptyPlan(t *testing.T) {
	clusters, err := Decompose(&models.Plan{})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if clusters == nil || len(clusters) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", clusters)
	}

	clusters, err = Decompose(nil)
	if err != nil || len(clusters) != 0 {
		t.Errorf("Decompose(nil) = %v, %v; want empty, nil", clusters, err)
	}
}

func TestDecompose_SingleStep(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{step(7, []string{"a.go"})}}

	clusters, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if !reflect.DeepEqual(clusters[0].StepNumbers, []int{7}) {
		t.Errorf("StepNumbers = %v, want [7]", clusters[0].StepNumbers)
	}
	if !reflect.DeepEqual(clusters[0].Files, []string{"a.go"}) {
		t.Errorf("Files = %v, want [a.go]", clusters[0].Files)
	}
}

func TestDecompose_ThreeIndependentGroups(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		step(1, []string{"src/auth/login.go"}),
		step(2, []string{"src/auth/login.go", "src/auth/session.go"}),
		step(3, []string{"src/api/routes.go"}),
		step(4, []string{"src/api/handlers.go"}, 3),
		step(5, []string{"src/utils/strings.go"}),
		step(6, []string{"src/utils/strings_test.go"}, 5),
	}}

	clusters, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d: %+v", len(clusters), clusters)
	}

	want := [][]int{{1, 2}, {3, 4}, {5, 6}}
	for i, c := range clusters {
		if c.Index != i {
			t.Errorf("cluster %d has Index %d", i, c.Index)
		}
		if !reflect.DeepEqual(c.StepNumbers, want[i]) {
			t.Errorf("cluster %d steps = %v, want %v", i, c.StepNumbers, want[i])
		}
		if len(c.ExternalDependencies) != 0 {
			t.Errorf("cluster %d has external deps %v", i, c.ExternalDependencies)
		}
	}

	if !reflect.DeepEqual(clusters[0].Files, []string{"src/auth/login.go", "src/auth/session.go"}) {
		t.Errorf("cluster 0 files = %v", clusters[0].Files)
	}
}

func TestDecompose_StepNumbersSortedRegardlessOfInputOrder(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		step(9, []string{"x.go"}),
		step(2, []string{"x.go"}),
		step(40, []string{"y.go"}, 9),
		step(1, nil, 40),
	}}

	clusters, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if !reflect.DeepEqual(clusters[0].StepNumbers, []int{1, 2, 9, 40}) {
		t.Errorf("StepNumbers = %v, want [1 2 9 40]", clusters[0].StepNumbers)
	}
}

func TestDecompose_DependencyEitherDirectionJoins(t *testing.T) {
	// Step 1 depends on a later step; the edge still joins them.
	plan := &models.Plan{Steps: []models.Step{
		step(1, []string{"a.go"}, 2),
		step(2, []string{"b.go"}),
		step(3, []string{"c.go"}),
	}}

	clusters, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if !reflect.DeepEqual(clusters[0].StepNumbers, []int{1, 2}) {
		t.Errorf("cluster 0 = %v, want [1 2]", clusters[0].StepNumbers)
	}
}

func TestDecompose_PathsNormalized(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		step(1, []string{"./src/a.go"}),
		step(2, []string{"src//a.go"}),
		step(3, []string{"  ", ""}),
	}}

	clusters, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if !reflect.DeepEqual(clusters[0].Files, []string{"src/a.go"}) {
		t.Errorf("cluster 0 files = %v, want [src/a.go]", clusters[0].Files)
	}
	if len(clusters[1].Files) != 0 {
		t.Errorf("blank paths should be ignored, got %v", clusters[1].Files)
	}
}

func TestDecompose_DuplicateStepNumber(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{step(1, nil), step(1, nil)}}

	_, err := Decompose(plan)
	if !errors.Is(err, ErrDuplicateStep) {
		t.Errorf("expected ErrDuplicateStep, got %v", err)
	}
}

func TestDecompose_UnknownDependencyIsStructuralViolation(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		step(1, []string{"a.go"}),
		step(2, []string{"b.go"}, 99),
	}}

	clusters, err := Decompose(plan)
	if !errors.Is(err, ErrStructuralViolation) {
		t.Fatalf("expected ErrStructuralViolation, got %v", err)
	}
	if clusters != nil {
		t.Errorf("rejected partition should return no clusters, got %v", clusters)
	}
}

// randomPlan builds a plan with sparse, shuffled step numbers, random shared
// files and random backward dependencies.
func randomPlan(r *rand.Rand, n int) *models.Plan {
	nums := r.Perm(n * 3)[:n]
	files := []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go", "g.go", "h.go"}
	plan := &models.Plan{}
	for i, num := range nums {
		s := models.Step{Number: num + 1}
		for k := r.Intn(3); k > 0; k-- {
			s.TargetFiles = append(s.TargetFiles, files[r.Intn(len(files))]+string(rune('a'+r.Intn(4))))
		}
		if i > 0 && r.Intn(4) == 0 {
			s.DependsOn = append(s.DependsOn, nums[r.Intn(i)]+1)
		}
		plan.Steps = append(plan.Steps, s)
	}
	return plan
}

func TestDecompose_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		plan := randomPlan(r, 1+r.Intn(25))
		clusters, err := Decompose(plan)
		if err != nil {
			t.Fatalf("iteration %d: Decompose failed: %v", iter, err)
		}

		owner := make(map[int]int)
		for ci, c := range clusters {
			if !slices.IsSorted(c.StepNumbers) {
				t.Fatalf("iteration %d: cluster %d steps not sorted: %v", iter, ci, c.StepNumbers)
			}
			for _, n := range c.StepNumbers {
				if prev, dup := owner[n]; dup {
					t.Fatalf("iteration %d: step %d in clusters %d and %d", iter, n, prev, ci)
				}
				owner[n] = ci
			}
		}

		// Partition property: every step is covered exactly once.
		if len(owner) != len(plan.Steps) {
			t.Fatalf("iteration %d: %d steps clustered, plan has %d", iter, len(owner), len(plan.Steps))
		}

		// Shared files and dependency edges always co-cluster.
		for i, a := range plan.Steps {
			for _, dep := range a.DependsOn {
				if owner[a.Number] != owner[dep] {
					t.Fatalf("iteration %d: step %d and its dependency %d split", iter, a.Number, dep)
				}
			}
			for _, b := range plan.Steps[i+1:] {
				if sharesFile(a, b) && owner[a.Number] != owner[b.Number] {
					t.Fatalf("iteration %d: steps %d and %d share a file but are split", iter, a.Number, b.Number)
				}
			}
		}
	}
}

func sharesFile(a, b models.Step) bool {
	for _, f := range a.TargetFiles {
		if slices.Contains(b.TargetFiles, f) {
			return true
		}
	}
	return false
}

func TestDecompose_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	plan := randomPlan(r, 30)

	first, err := Decompose(plan)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Decompose(plan)
		if err != nil {
			t.Fatalf("Decompose failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Decompose returned different clusters for the same plan")
		}
	}
}
