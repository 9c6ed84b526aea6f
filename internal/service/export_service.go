package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mentrauz/OpenRoll-sub000/internal/dto"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/config"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/export"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/jobs"
)

const (
	exportJobQueued  = "QUEUED"
	exportJobRunning = "RUNNING"
	exportJobDone    = "DONE"
	exportJobFailed  = "FAILED"
)

type changeLister interface {
	List(ctx context.Context, filter models.ChangeFilter) ([]models.PendingChange, error)
}

type exportJobPayload struct {
	Format      string
	Status      string
	RequestedBy string
}

// ExportService renders the change register to CSV or PDF files through a
// background worker queue. Job state is tracked in memory; files land in
// the configured storage directory.
type ExportService struct {
	repo       changeLister
	audit      auditLogger
	queue      *jobs.Queue
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	cfg        config.ExportsConfig
	privileged []string
	logger     *zap.Logger

	mu     sync.RWMutex
	states map[string]*dto.ExportJobResponse
}

// NewExportService constructs the service and its worker queue. Call Start
// before accepting export requests.
func NewExportService(repo changeLister, audit auditLogger, cfg config.ExportsConfig, workflow config.WorkflowConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		repo:       repo,
		audit:      audit,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		cfg:        cfg,
		privileged: workflow.PrivilegedRoles,
		logger:     logger,
		states:     make(map[string]*dto.ExportJobResponse),
	}
	s.queue = jobs.NewQueue("change-exports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// CreateExport queues a change-register export and returns its tracking state.
func (s *ExportService) CreateExport(ctx context.Context, req dto.CreateExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	job := &dto.ExportJobResponse{
		ID:          uuid.NewString(),
		Format:      format,
		Status:      exportJobQueued,
		RequestedBy: actor.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.states[job.ID] = job
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:   job.ID,
		Type: "change_register",
		Payload: exportJobPayload{
			Format:      format,
			Status:      strings.TrimSpace(req.Status),
			RequestedBy: actor.UserID,
		},
	})
	if err != nil {
		s.setState(job.ID, func(state *dto.ExportJobResponse) {
			state.Status = exportJobFailed
			state.Error = "export queue unavailable"
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}

	s.emitExportAudit(ctx, actor.UserID, job.ID)
	return s.snapshotState(job.ID), nil
}

// GetJob returns the tracked state of an export job. Requesters see only
// their own jobs; privileged roles see all of them.
func (s *ExportService) GetJob(id string, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	state := s.snapshotState(id)
	if state == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if state.RequestedBy != actor.UserID && !privilegedRole(actor.Role, s.privileged) {
		return nil, appErrors.ErrForbidden
	}
	return state, nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		s.setState(job.ID, func(state *dto.ExportJobResponse) {
			state.Status = exportJobFailed
			state.Error = "invalid export payload"
		})
		return nil
	}
	s.setState(job.ID, func(state *dto.ExportJobResponse) {
		state.Status = exportJobRunning
	})

	changes, err := s.repo.List(ctx, models.ChangeFilter{
		Status: parseStatusFilter(payload.Status),
		Limit:  200,
	})
	if err != nil {
		return s.fail(job.ID, fmt.Errorf("list changes for export: %w", err))
	}

	table := changeRegisterTable(changes)
	var rendered []byte
	switch payload.Format {
	case "pdf":
		rendered, err = s.pdf.Render(table, "Change Register")
	default:
		rendered, err = s.csv.Render(table)
	}
	if err != nil {
		return s.fail(job.ID, fmt.Errorf("render export: %w", err))
	}

	if err := os.MkdirAll(s.cfg.StorageDir, 0o755); err != nil {
		return s.fail(job.ID, fmt.Errorf("prepare export dir: %w", err))
	}
	fileName := fmt.Sprintf("change-register-%s.%s", job.ID, payload.Format)
	if err := os.WriteFile(filepath.Join(s.cfg.StorageDir, fileName), rendered, 0o644); err != nil {
		return s.fail(job.ID, fmt.Errorf("write export file: %w", err))
	}

	now := time.Now().UTC()
	s.setState(job.ID, func(state *dto.ExportJobResponse) {
		state.Status = exportJobDone
		state.FileName = fileName
		state.Error = ""
		state.CompletedAt = &now
	})
	s.logger.Info("change register exported",
		zap.String("job_id", job.ID),
		zap.String("file", fileName),
		zap.Int("rows", len(changes)))
	return nil
}

func (s *ExportService) fail(jobID string, err error) error {
	s.setState(jobID, func(state *dto.ExportJobResponse) {
		state.Status = exportJobFailed
		state.Error = err.Error()
	})
	return err
}

func (s *ExportService) setState(id string, mutate func(*dto.ExportJobResponse)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[id]; ok {
		mutate(state)
	}
}

func (s *ExportService) snapshotState(id string) *dto.ExportJobResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	if !ok {
		return nil
	}
	copied := *state
	return &copied
}

func (s *ExportService) emitExportAudit(ctx context.Context, userID, jobID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionExportRequest,
		Resource:   "export",
		ResourceID: &jobID,
		IPAddress:  "system",
		UserAgent:  "export-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist export audit log", zap.Error(err))
	}
}

// parseStatusFilter interprets the optional status parameter. Empty or
// "all" exports every state.
func parseStatusFilter(raw string) []models.ChangeStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]models.ChangeStatus, 0, len(parts))
	for _, part := range parts {
		status := models.ChangeStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch status {
		case models.ChangeStatusPending, models.ChangeStatusApproved,
			models.ChangeStatusRejected, models.ChangeStatusApplyFailed:
			statuses = append(statuses, status)
		}
	}
	return statuses
}

func changeRegisterTable(changes []models.PendingChange) export.Table {
	table := export.Table{
		Columns: []string{"ID", "Type", "Entity", "Entity ID", "Status", "Requested By", "Requested At", "Reviewed By", "Reviewed At", "Description"},
	}
	for _, change := range changes {
		reviewedBy := ""
		if change.ReviewedBy != nil {
			reviewedBy = *change.ReviewedBy
		}
		reviewedAt := ""
		if change.ReviewedAt != nil {
			reviewedAt = change.ReviewedAt.Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{
			change.ID,
			string(change.Type),
			string(change.Entity),
			change.EntityID,
			string(change.Status),
			change.RequestedBy,
			change.RequestedAt.Format(time.RFC3339),
			reviewedBy,
			reviewedAt,
			change.Description,
		})
	}
	return table
}
