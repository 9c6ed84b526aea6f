package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// UnitRepository is the typed accessor for business unit records.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository constructs the repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

const unitColumns = `id, name, code, address, gst_number, contact_email, active, last_change, created_at, updated_at`

// FindByID returns a unit by identifier.
func (r *UnitRepository) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE id = $1", unitColumns)
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ExistsByCode reports whether another unit already uses the code.
func (r *UnitRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM units WHERE code = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, code, excludeID); err != nil {
		return false, fmt.Errorf("check unit code: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new unit together with its last_change trail.
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now
	const query = `INSERT INTO units
	(id, name, code, address, gst_number, contact_email, active, last_change, created_at, updated_at)
	VALUES (:id, :name, :code, :address, :gst_number, :contact_email, :active, :last_change, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// Update writes the unit's mutable fields and last_change in one statement.
func (r *UnitRepository) Update(ctx context.Context, unit *models.Unit) error {
	unit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE units SET
	name = :name, code = :code, address = :address, gst_number = :gst_number,
	contact_email = :contact_email, active = :active, last_change = :last_change, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return nil
}
