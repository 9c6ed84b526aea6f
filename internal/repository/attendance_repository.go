package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// AttendanceRepository is the typed accessor for attendance summaries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, employee_id, unit_id, period, days_present, days_absent, overtime_hours, last_change, created_at, updated_at`

// FindByID returns an attendance row by identifier.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance WHERE id = $1", attendanceColumns)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByEmployeePeriod returns the row for an employee/period pair.
func (r *AttendanceRepository) FindByEmployeePeriod(ctx context.Context, employeeID, period string) (*models.Attendance, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance WHERE employee_id = $1 AND period = $2", attendanceColumns)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, employeeID, period); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert writes an attendance summary, replacing any existing row for the
// same employee and period, and stamps the last_change trail.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance
	(id, employee_id, unit_id, period, days_present, days_absent, overtime_hours, last_change, created_at, updated_at)
	VALUES (:id, :employee_id, :unit_id, :period, :days_present, :days_absent, :overtime_hours, :last_change, :created_at, :updated_at)
	ON CONFLICT (employee_id, period) DO UPDATE SET
	unit_id = EXCLUDED.unit_id, days_present = EXCLUDED.days_present, days_absent = EXCLUDED.days_absent,
	overtime_hours = EXCLUDED.overtime_hours, last_change = EXCLUDED.last_change, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}
