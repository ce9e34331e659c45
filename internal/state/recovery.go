package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// InterruptedPlan is a plan left in a non-terminal status by a run that
// never finished, typically because the process exited mid-dispatch.
type InterruptedPlan struct {
	PlanID    string
	ParentID  string
	Status    models.PlanStatus
	CreatedAt time.Time
}

// RecoveryManager finds and closes out interrupted plans.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted lists plans still marked executing that were created
// before now minus staleAfter.
func (rm *RecoveryManager) CheckForInterrupted(staleAfter time.Duration) ([]InterruptedPlan, error) {
	cutoff := formatTime(time.Now().Add(-staleAfter))
	rows, err := rm.db.Query(`
		SELECT id, parent_id, status, created_at FROM plans
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at, id
	`, string(models.PlanExecuting), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list interrupted plans: %w", err)
	}
	defer rows.Close()

	var found []InterruptedPlan
	for rows.Next() {
		var ip InterruptedPlan
		var parentID sql.NullString
		var status, createdAt string
		if err := rows.Scan(&ip.PlanID, &parentID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interrupted plan: %w", err)
		}
		ip.ParentID = parentID.String
		ip.Status = models.PlanStatus(status)
		ip.CreatedAt, _ = parseTime(createdAt)
		found = append(found, ip)
	}
	return found, rows.Err()
}

// Clean marks every interrupted plan as failed with an error noting the
// interruption. Returns the number of plans updated.
func (rm *RecoveryManager) Clean(staleAfter time.Duration) (int, error) {
	found, err := rm.CheckForInterrupted(staleAfter)
	if err != nil {
		return 0, err
	}

	for _, ip := range found {
		p, err := rm.db.GetPlan(ip.PlanID)
		if err != nil {
			return 0, fmt.Errorf("load plan %s: %w", ip.PlanID, err)
		}
		if p == nil {
			continue
		}
		p.Status = models.PlanFailed
		p.Errors = append(p.Errors, fmt.Sprintf("plan %s: cancelled: interrupted before completion", p.ID))
		now := time.Now()
		p.CompletedAt = &now
		if err := rm.db.SavePlan(p); err != nil {
			return 0, fmt.Errorf("fail plan %s: %w", p.ID, err)
		}
	}
	return len(found), nil
}
