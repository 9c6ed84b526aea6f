package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// ChangeRepository persists change-approval workflow data.
type ChangeRepository struct {
	db *sqlx.DB
}

// NewChangeRepository constructs the repository.
func NewChangeRepository(db *sqlx.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

const changeColumns = `id, type, entity, entity_id, proposed_fields, current_snapshot, description, status,
       requested_by, requested_by_role, requested_at, reviewed_by, reviewed_at, review_comments`

// Create inserts a new pending change row.
func (r *ChangeRepository) Create(ctx context.Context, change *models.PendingChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Status == "" {
		change.Status = models.ChangeStatusPending
	}
	if change.RequestedAt.IsZero() {
		change.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO changes
	(id, type, entity, entity_id, proposed_fields, current_snapshot, description, status, requested_by, requested_by_role, requested_at, reviewed_by, reviewed_at, review_comments)
	VALUES (:id, :type, :entity, :entity_id, :proposed_fields, :current_snapshot, :description, :status, :requested_by, :requested_by_role, :requested_at, :reviewed_by, :reviewed_at, :review_comments)`
	if _, err := r.db.NamedExecContext(ctx, query, change); err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	return nil
}

// GetByID fetches a change by identifier.
func (r *ChangeRepository) GetByID(ctx context.Context, id string) (*models.PendingChange, error) {
	query := fmt.Sprintf("SELECT %s FROM changes WHERE id = $1", changeColumns)
	var change models.PendingChange
	if err := r.db.GetContext(ctx, &change, query, id); err != nil {
		return nil, err
	}
	return &change, nil
}

// List returns changes matching the filter (newest first).
func (r *ChangeRepository) List(ctx context.Context, filter models.ChangeFilter) ([]models.PendingChange, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM changes", changeColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		conditions = append(conditions, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		conditions = append(conditions, fmt.Sprintf("reviewed_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var changes []models.PendingChange
	if err := r.db.SelectContext(ctx, &changes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return changes, nil
}

// ClaimParams groups the columns written by a review transition.
type ClaimParams struct {
	ID         string
	Status     models.ChangeStatus
	ReviewedBy string
	ReviewedAt time.Time
	Comments   string
}

// ClaimPending atomically transitions a change out of PENDING. The WHERE
// clause on the current status is the CAS guard: with two concurrent
// reviewers only one UPDATE reports an affected row, and only that caller
// may go on to touch the target record. Returns sql.ErrNoRows when the
// change was already claimed.
func (r *ChangeRepository) ClaimPending(ctx context.Context, params ClaimParams) error {
	query := fmt.Sprintf(`UPDATE changes
	SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, review_comments = :review_comments
	WHERE id = :id AND status = '%s'`, models.ChangeStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":              params.ID,
		"status":          params.Status,
		"reviewed_by":     params.ReviewedBy,
		"reviewed_at":     params.ReviewedAt,
		"review_comments": params.Comments,
	})
	if err != nil {
		return fmt.Errorf("claim change: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check claim rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkApplyFailed moves an approved change whose target write failed into
// the APPLY_FAILED reconciliation state.
func (r *ChangeRepository) MarkApplyFailed(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE changes SET status = '%s' WHERE id = $1 AND status = '%s'`,
		models.ChangeStatusApplyFailed, models.ChangeStatusApproved)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark apply failed: %w", err)
	}
	return nil
}

// CountByStatus aggregates change counts per workflow state.
func (r *ChangeRepository) CountByStatus(ctx context.Context) (map[models.ChangeStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM changes GROUP BY status`
	rows := []struct {
		Status models.ChangeStatus `db:"status"`
		Count  int                 `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count changes by status: %w", err)
	}
	counts := make(map[models.ChangeStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountByType aggregates change counts per change type.
func (r *ChangeRepository) CountByType(ctx context.Context) ([]models.ChangeTypeCount, error) {
	const query = `SELECT type, COUNT(*) AS count FROM changes GROUP BY type ORDER BY type`
	var counts []models.ChangeTypeCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count changes by type: %w", err)
	}
	return counts, nil
}

// CountPendingByRequester counts the pending changes submitted by a user.
func (r *ChangeRepository) CountPendingByRequester(ctx context.Context, userID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM changes WHERE status = '%s' AND requested_by = $1`, models.ChangeStatusPending)
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count pending changes: %w", err)
	}
	return count, nil
}
