package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

func newChangeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func changeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "type", "entity", "entity_id", "proposed_fields", "current_snapshot", "description", "status",
		"requested_by", "requested_by_role", "requested_at", "reviewed_by", "reviewed_at", "review_comments",
	})
}

func TestChangeRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO changes")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	change := &models.PendingChange{
		Type:            models.ChangeTypeEmployeeUpdate,
		Entity:          models.EntityEmployee,
		EntityID:        "emp-1",
		ProposedFields:  []byte(`{"designation":"Manager"}`),
		CurrentSnapshot: []byte(`{"designation":"Clerk"}`),
		Description:     "employee update for employee emp-1",
		RequestedBy:     "ops-1",
		RequestedByRole: models.RoleDataOps,
	}
	require.NoError(t, repo.Create(context.Background(), change))
	require.NotEmpty(t, change.ID)
	require.Equal(t, models.ChangeStatusPending, change.Status)
	require.False(t, change.RequestedAt.IsZero())

	rows := changeRows().
		AddRow(change.ID, "EMPLOYEE_UPDATE", "employee", "emp-1", []byte(`{"designation":"Manager"}`), []byte(`{"designation":"Clerk"}`),
			change.Description, "PENDING", "ops-1", "DATAOPS", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, entity, entity_id")).
		WithArgs(change.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), change.ID)
	require.NoError(t, err)
	require.Equal(t, change.ID, found.ID)
	require.Equal(t, models.ChangeStatusPending, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	rows := changeRows().
		AddRow("chg-1", "UNIT_UPDATE", "unit", "unit-1", []byte(`{}`), []byte(`{}`), "unit update", "PENDING", "ops-1", "DATAOPS", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, entity, entity_id")).
		WithArgs("PENDING", "unit").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ChangeFilter{
		Status: []models.ChangeStatus{models.ChangeStatusPending},
		Entity: models.EntityUnit,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "chg-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryClaimPending(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE changes")).WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.ClaimPending(context.Background(), ClaimParams{
		ID:         "chg-1",
		Status:     models.ChangeStatusApproved,
		ReviewedBy: "admin-1",
		ReviewedAt: now,
		Comments:   "ok",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryClaimPendingLosesRace(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)

	// Zero affected rows means another reviewer already flipped the status.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE changes")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ClaimPending(context.Background(), ClaimParams{
		ID:         "chg-1",
		Status:     models.ChangeStatusRejected,
		ReviewedBy: "admin-2",
		ReviewedAt: time.Now().UTC(),
		Comments:   "duplicate",
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryMarkApplyFailed(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE changes SET status = 'APPLY_FAILED'")).
		WithArgs("chg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkApplyFailed(context.Background(), "chg-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newChangeRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)

	statusRows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PENDING", 4).
		AddRow("APPROVED", 7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*)")).WillReturnRows(statusRows)

	byStatus, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, byStatus[models.ChangeStatusPending])
	require.Equal(t, 7, byStatus[models.ChangeStatusApproved])

	typeRows := sqlmock.NewRows([]string{"type", "count"}).
		AddRow("EMPLOYEE_UPDATE", 6)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT type, COUNT(*)")).WillReturnRows(typeRows)

	byType, err := repo.CountByType(context.Background())
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, models.ChangeTypeEmployeeUpdate, byType[0].Type)

	pendingRows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM changes")).
		WithArgs("ops-1").
		WillReturnRows(pendingRows)

	pending, err := repo.CountPendingByRequester(context.Background(), "ops-1")
	require.NoError(t, err)
	require.Equal(t, 2, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}
