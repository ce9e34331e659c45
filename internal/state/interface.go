package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// PlanStore handles plan persistence operations.
type PlanStore interface {
	SavePlan(p *models.Plan) error
	GetPlan(id string) (*models.Plan, error)
	ListSubPlans(parentID string) ([]models.Plan, error)
	ListPlans(status *models.PlanStatus) ([]models.Plan, error)
	PurgeOldPlans(olderThan time.Duration) (int64, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
type StateStore interface {
	io.Closer
	Migrator
	PlanStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ Migrator   = (*DB)(nil)
	_ PlanStore  = (*DB)(nil)
)
