package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mentrauz/OpenRoll-sub000/internal/dto"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/config"
)

type changeListerStub struct {
	changes []models.PendingChange
	filter  models.ChangeFilter
}

func (s *changeListerStub) List(ctx context.Context, filter models.ChangeFilter) ([]models.PendingChange, error) {
	s.filter = filter
	return s.changes, nil
}

func TestExportServiceCreatesAndCompletesJob(t *testing.T) {
	lister := &changeListerStub{changes: []models.PendingChange{
		{ID: "chg-1", Type: models.ChangeTypeEmployeeUpdate, Entity: models.EntityEmployee, Status: models.ChangeStatusApproved, RequestedBy: "ops-1", RequestedAt: time.Now().UTC()},
	}}
	audit := &auditStub{}
	svc := NewExportService(lister, audit, config.ExportsConfig{
		Enabled:           true,
		StorageDir:        t.TempDir(),
		WorkerConcurrency: 1,
		WorkerRetries:     1,
	}, workflowConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	job, err := svc.CreateExport(ctx, dto.CreateExportRequest{Format: "csv", Status: "approved"}, actor)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionExportRequest, audit.logs[0].Action)

	require.Eventually(t, func() bool {
		state, err := svc.GetJob(job.ID, actor)
		return err == nil && state.Status == exportJobDone
	}, 5*time.Second, 20*time.Millisecond)

	state, err := svc.GetJob(job.ID, actor)
	require.NoError(t, err)
	require.NotEmpty(t, state.FileName)
	require.Equal(t, []models.ChangeStatus{models.ChangeStatusApproved}, lister.filter.Status)
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&changeListerStub{}, nil, config.ExportsConfig{StorageDir: t.TempDir()}, workflowConfig(), nil)

	_, err := svc.CreateExport(context.Background(), dto.CreateExportRequest{Format: "xlsx"}, &models.JWTClaims{UserID: "admin-1"})
	require.Error(t, err)
}

func TestExportServiceScopesJobsToOwner(t *testing.T) {
	svc := NewExportService(&changeListerStub{}, nil, config.ExportsConfig{StorageDir: t.TempDir(), WorkerConcurrency: 1}, workflowConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	owner := &models.JWTClaims{UserID: "ops-1", Role: models.RoleDataOps}
	job, err := svc.CreateExport(ctx, dto.CreateExportRequest{Format: "csv"}, owner)
	require.NoError(t, err)

	_, err = svc.GetJob(job.ID, &models.JWTClaims{UserID: "ops-2", Role: models.RoleDataOps})
	require.Error(t, err)

	// Reviewers are not limited to their own jobs.
	state, err := svc.GetJob(job.ID, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, "ops-1", state.RequestedBy)
}

func TestParseStatusFilter(t *testing.T) {
	require.Nil(t, parseStatusFilter(""))
	require.Nil(t, parseStatusFilter("all"))
	require.Equal(t,
		[]models.ChangeStatus{models.ChangeStatusPending, models.ChangeStatusApplyFailed},
		parseStatusFilter("pending, apply_failed, bogus"))
}

func TestChangeRegisterTableColumnsAndRows(t *testing.T) {
	reviewer := "admin-1"
	reviewedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	table := changeRegisterTable([]models.PendingChange{
		{
			ID:          "chg-1",
			Type:        models.ChangeTypeUnitUpdate,
			Entity:      models.EntityUnit,
			EntityID:    "unit-1",
			Status:      models.ChangeStatusApproved,
			RequestedBy: "ops-1",
			RequestedAt: reviewedAt.Add(-time.Hour),
			ReviewedBy:  &reviewer,
			ReviewedAt:  &reviewedAt,
			Description: "unit update for unit unit-1",
		},
	})
	require.Len(t, table.Columns, 10)
	require.Len(t, table.Rows, 1)
	require.Equal(t, "chg-1", table.Rows[0][0])
	require.Equal(t, "APPROVED", table.Rows[0][4])
	require.Equal(t, "admin-1", table.Rows[0][7])
}
