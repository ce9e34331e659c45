package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/fanout/pkg/models"
)

const planColumns = `id, parent_id, task_id, created_by, lead_id, summary, task_description,
	estimated_tool_calls, risk_level, security_tier, status, assignees, provenance, steps,
	files_modified, change_ids, total_tool_calls, total_duration_ms, errors, created_at, completed_at`

// SavePlan inserts the plan or replaces the stored record with the same ID.
// A sub-plan's parent must already be stored.
func (db *DB) SavePlan(p *models.Plan) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("save plan: missing plan ID")
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var completedAt sql.NullString
	if p.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*p.CompletedAt), Valid: true}
	}

	var parentID sql.NullString
	if p.ParentID != "" {
		parentID = sql.NullString{String: p.ParentID, Valid: true}
	}

	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	provenance, err := json.Marshal(p.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	assignees, _ := json.Marshal(p.Assignees)
	filesModified, _ := json.Marshal(p.FilesModified)
	changeIDs, _ := json.Marshal(p.ChangeIDs)
	errs, _ := json.Marshal(p.Errors)

	_, err = db.Exec(`
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			task_id = excluded.task_id,
			created_by = excluded.created_by,
			lead_id = excluded.lead_id,
			summary = excluded.summary,
			task_description = excluded.task_description,
			estimated_tool_calls = excluded.estimated_tool_calls,
			risk_level = excluded.risk_level,
			security_tier = excluded.security_tier,
			status = excluded.status,
			assignees = excluded.assignees,
			provenance = excluded.provenance,
			steps = excluded.steps,
			files_modified = excluded.files_modified,
			change_ids = excluded.change_ids,
			total_tool_calls = excluded.total_tool_calls,
			total_duration_ms = excluded.total_duration_ms,
			errors = excluded.errors,
			completed_at = excluded.completed_at
	`, p.ID, parentID, p.TaskID, p.CreatedBy, p.LeadID, p.Summary, p.TaskDescription,
		p.EstimatedToolCalls, string(p.RiskLevel), string(p.SecurityTier), string(p.Status),
		string(assignees), string(provenance), string(steps),
		string(filesModified), string(changeIDs), p.TotalToolCalls, p.TotalDurationMs, string(errs),
		formatTime(createdAt), completedAt)
	if err != nil {
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}

// GetPlan retrieves a plan by ID. Returns nil, nil if it does not exist.
func (db *DB) GetPlan(id string) (*models.Plan, error) {
	row := db.QueryRow(`SELECT `+planColumns+` FROM plans WHERE id = ?`, id)

	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

// ListSubPlans returns the sub-plans of a parent in creation order.
func (db *DB) ListSubPlans(parentID string) ([]models.Plan, error) {
	rows, err := db.Query(`
		SELECT `+planColumns+`
		FROM plans WHERE parent_id = ? ORDER BY created_at, id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list sub-plans: %w", err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

// ListPlans returns top-level plans, newest first.
// If status is nil, returns plans of every status.
func (db *DB) ListPlans(status *models.PlanStatus) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE parent_id IS NULL`
	var args []any
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

// PurgeOldPlans deletes top-level plans created before now minus olderThan,
// together with their sub-plans. Returns the number of top-level plans deleted.
func (db *DB) PurgeOldPlans(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM plans WHERE parent_id IS NULL AND created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old plans: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*models.Plan, error) {
	var p models.Plan
	var parentID, assignees, provenance, filesModified, changeIDs, errs, completedAt sql.NullString
	var riskLevel, securityTier, status, steps, createdAt string

	err := row.Scan(&p.ID, &parentID, &p.TaskID, &p.CreatedBy, &p.LeadID, &p.Summary, &p.TaskDescription,
		&p.EstimatedToolCalls, &riskLevel, &securityTier, &status, &assignees, &provenance, &steps,
		&filesModified, &changeIDs, &p.TotalToolCalls, &p.TotalDurationMs, &errs, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	p.ParentID = parentID.String
	p.RiskLevel = models.RiskLevel(riskLevel)
	p.SecurityTier = models.SecurityTier(securityTier)
	p.Status = models.PlanStatus(status)
	p.CreatedAt, _ = parseTime(createdAt)
	p.CompletedAt = parseNullableTime(completedAt)

	if err := json.Unmarshal([]byte(steps), &p.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of plan %s: %w", p.ID, err)
	}
	for _, col := range []struct {
		raw  sql.NullString
		dest any
	}{
		{assignees, &p.Assignees},
		{provenance, &p.Provenance},
		{filesModified, &p.FilesModified},
		{changeIDs, &p.ChangeIDs},
		{errs, &p.Errors},
	} {
		if !col.raw.Valid || col.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw.String), col.dest); err != nil {
			return nil, fmt.Errorf("decode plan %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanPlans(rows *sql.Rows) ([]models.Plan, error) {
	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}
