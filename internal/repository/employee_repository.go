package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// EmployeeRepository is the typed accessor for employee records.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs the repository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `id, name, esic_number, pf_number, uan_number, designation, unit_id,
       bank_account, ifsc_code, basic_pay, joining_date, active, last_change, created_at, updated_at`

// FindByID returns an employee by identifier.
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	query := fmt.Sprintf("SELECT %s FROM employees WHERE id = $1", employeeColumns)
	var employee models.Employee
	if err := r.db.GetContext(ctx, &employee, query, id); err != nil {
		return nil, err
	}
	return &employee, nil
}

// ExistsByESIC reports whether another employee already uses the ESIC number.
func (r *EmployeeRepository) ExistsByESIC(ctx context.Context, esicNumber, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM employees WHERE esic_number = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, esicNumber, excludeID); err != nil {
		return false, fmt.Errorf("check esic number: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new employee together with its last_change trail.
func (r *EmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	if employee.ID == "" {
		employee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = now
	}
	employee.UpdatedAt = now
	const query = `INSERT INTO employees
	(id, name, esic_number, pf_number, uan_number, designation, unit_id, bank_account, ifsc_code, basic_pay, joining_date, active, last_change, created_at, updated_at)
	VALUES (:id, :name, :esic_number, :pf_number, :uan_number, :designation, :unit_id, :bank_account, :ifsc_code, :basic_pay, :joining_date, :active, :last_change, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, employee); err != nil {
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

// Update writes the employee's mutable fields and last_change in one statement.
func (r *EmployeeRepository) Update(ctx context.Context, employee *models.Employee) error {
	employee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE employees SET
	name = :name, esic_number = :esic_number, pf_number = :pf_number, uan_number = :uan_number,
	designation = :designation, unit_id = :unit_id, bank_account = :bank_account, ifsc_code = :ifsc_code,
	basic_pay = :basic_pay, joining_date = :joining_date, active = :active, last_change = :last_change, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, employee); err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	return nil
}
