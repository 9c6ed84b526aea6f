package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Mentrauz/OpenRoll-sub000/internal/dto"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	"github.com/Mentrauz/OpenRoll-sub000/internal/repository"
	"github.com/Mentrauz/OpenRoll-sub000/pkg/config"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
)

const statsCachePrefix = "changes:stats:"

type changeStore interface {
	Create(ctx context.Context, change *models.PendingChange) error
	GetByID(ctx context.Context, id string) (*models.PendingChange, error)
	List(ctx context.Context, filter models.ChangeFilter) ([]models.PendingChange, error)
	ClaimPending(ctx context.Context, params repository.ClaimParams) error
	MarkApplyFailed(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[models.ChangeStatus]int, error)
	CountByType(ctx context.Context) ([]models.ChangeTypeCount, error)
	CountPendingByRequester(ctx context.Context, userID string) (int, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// changeTypeEntities pins each change type to the entity it may address.
var changeTypeEntities = map[models.ChangeType]models.TargetEntity{
	models.ChangeTypeEmployeeRegistration: models.EntityEmployee,
	models.ChangeTypeEmployeeUpdate:       models.EntityEmployee,
	models.ChangeTypeUnitRegistration:     models.EntityUnit,
	models.ChangeTypeUnitUpdate:           models.EntityUnit,
	models.ChangeTypeAttendanceMark:       models.EntityAttendance,
	models.ChangeTypeBulkUpload:           models.EntityAttendance,
}

// registrationTypes create a new target row, so submissions must not carry
// an entityId and updates must.
var registrationTypes = map[models.ChangeType]bool{
	models.ChangeTypeEmployeeRegistration: true,
	models.ChangeTypeUnitRegistration:     true,
	models.ChangeTypeBulkUpload:           true,
}

// ChangeService routes mutations through the approval workflow. Privileged
// submitters hit the target directly; everyone else's request is parked as
// a pending change until a reviewer decides it.
type ChangeService struct {
	repo     changeStore
	audit    auditLogger
	cache    statsCache
	appliers map[models.TargetEntity]ChangeApplier
	cfg      config.WorkflowConfig
	logger   *zap.Logger
	validate *validator.Validate
}

// NewChangeService constructs the service. The applier map must cover every
// entity the service should accept; submissions for uncovered entities fail
// validation.
func NewChangeService(repo changeStore, audit auditLogger, cache statsCache, appliers map[models.TargetEntity]ChangeApplier, cfg config.WorkflowConfig, logger *zap.Logger) *ChangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeService{
		repo:     repo,
		audit:    audit,
		cache:    cache,
		appliers: appliers,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// Submit routes a mutation request. The returned response reports whether
// the mutation was applied immediately or deferred for review.
func (s *ChangeService) Submit(ctx context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*dto.SubmitChangeResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type, entity, and fields are required")
	}
	req.Type = models.ChangeType(strings.ToUpper(string(req.Type)))
	req.Entity = models.TargetEntity(strings.ToLower(string(req.Entity)))
	if !models.ValidChangeType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported change type")
	}
	if !models.ValidTargetEntity(req.Entity) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported target entity")
	}
	if changeTypeEntities[req.Type] != req.Entity {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("change type %s does not apply to entity %s", req.Type, req.Entity))
	}
	switch {
	case registrationTypes[req.Type]:
		if req.EntityID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "entityId must be empty for registrations")
		}
	case req.Type == models.ChangeTypeAttendanceMark:
		// A mark may create a fresh employee/period row, so entityId is
		// optional; the applier requires employeeId and period instead.
	default:
		if req.EntityID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "entityId is required for updates")
		}
	}
	if !json.Valid(req.Fields) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fields must be valid JSON")
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(req.Fields, &payload); err != nil || len(payload) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fields must be a non-empty JSON object")
	}

	applier := s.appliers[req.Entity]
	if applier == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no applier registered for entity %s", req.Entity))
	}
	snapshot, err := applier.Snapshot(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	if s.isPrivileged(actor.Role) {
		return s.applyDirect(ctx, req, payload, snapshot, applier, actor)
	}
	return s.deferForReview(ctx, req, snapshot, actor)
}

// applyDirect performs the mutation immediately for privileged submitters.
// No pending change row is created for this path.
func (s *ChangeService) applyDirect(ctx context.Context, req dto.SubmitChangeRequest, payload map[string]json.RawMessage, snapshot map[string]interface{}, applier ChangeApplier, actor *models.JWTClaims) (*dto.SubmitChangeResponse, error) {
	trail := models.AuditTrail{
		UpdatedBy: actor.UserID,
		UpdatedAt: time.Now().UTC(),
		Changes:   FieldChanges(snapshot, decodeProposed(req.Fields), applier.WatchedKeys()),
	}
	targetID, err := applier.Apply(ctx, req.EntityID, payload, trail)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionChangeApply,
		Resource:   string(req.Entity),
		ResourceID: &targetID,
		NewValues:  append([]byte(nil), req.Fields...),
	})
	s.invalidateStats(ctx)
	return &dto.SubmitChangeResponse{Applied: true}, nil
}

// deferForReview parks the mutation as a pending change.
func (s *ChangeService) deferForReview(ctx context.Context, req dto.SubmitChangeRequest, snapshot map[string]interface{}, actor *models.JWTClaims) (*dto.SubmitChangeResponse, error) {
	snapshotJSON := []byte("{}")
	if snapshot != nil {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to capture current snapshot")
		}
		snapshotJSON = raw
	}
	change := &models.PendingChange{
		Type:            req.Type,
		Entity:          req.Entity,
		EntityID:        req.EntityID,
		ProposedFields:  append([]byte(nil), req.Fields...),
		CurrentSnapshot: snapshotJSON,
		Description:     describeChange(req, snapshot),
		Status:          models.ChangeStatusPending,
		RequestedBy:     actor.UserID,
		RequestedByRole: actor.Role,
	}
	if err := s.repo.Create(ctx, change); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionChangeSubmit,
		Resource:   string(req.Entity),
		ResourceID: &change.ID,
		NewValues:  change.ProposedFields,
	})
	s.invalidateStats(ctx)
	return &dto.SubmitChangeResponse{Applied: false, PendingID: change.ID}, nil
}

// Approve claims a pending change and applies it to the target. The status
// flip decides the race between concurrent reviewers; only the claim winner
// touches the target, so a change is never applied twice. If the target
// write fails after the claim the change degrades to APPLY_FAILED.
func (s *ChangeService) Approve(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	change, err := s.loadChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != models.ChangeStatusPending {
		return nil, appErrors.ErrAlreadyProcessed
	}
	applier := s.appliers[change.Entity]
	if applier == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("no applier registered for entity %s", change.Entity))
	}

	now := time.Now().UTC()
	err = s.repo.ClaimPending(ctx, repository.ClaimParams{
		ID:         change.ID,
		Status:     models.ChangeStatusApproved,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
		Comments:   strings.TrimSpace(req.Comments),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyProcessed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim change")
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(change.ProposedFields, &payload); err != nil {
		s.failApply(ctx, change.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored change payload is not a JSON object")
	}
	// The target may have drifted since submission; the trail diffs against
	// its state at apply time, same as the direct path. The submission-time
	// snapshot stays on the change row for the reviewer's reference.
	snapshot, err := applier.Snapshot(ctx, change.EntityID)
	if err != nil {
		s.failApply(ctx, change.ID, err)
		change.Status = models.ChangeStatusApplyFailed
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "change approved but applying it failed")
	}
	trail := models.AuditTrail{
		UpdatedBy: s.auditActor(change, actor),
		UpdatedAt: now,
		Changes:   FieldChanges(snapshot, decodeProposed(change.ProposedFields), applier.WatchedKeys()),
	}
	if _, err := applier.Apply(ctx, change.EntityID, payload, trail); err != nil {
		s.failApply(ctx, change.ID, err)
		change.Status = models.ChangeStatusApplyFailed
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "change approved but applying it failed")
	}

	change.Status = models.ChangeStatusApproved
	change.ReviewedBy = &actor.UserID
	change.ReviewedAt = &now
	if comments := strings.TrimSpace(req.Comments); comments != "" {
		change.ReviewComments = &comments
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionChangeReview,
		Resource:   string(change.Entity),
		ResourceID: &change.ID,
		OldValues:  change.CurrentSnapshot,
		NewValues:  change.ProposedFields,
	})
	s.invalidateStats(ctx)
	return change, nil
}

// Reject claims a pending change without touching the target. Comments are
// mandatory so the requester learns why.
func (s *ChangeService) Reject(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	comments := strings.TrimSpace(req.Comments)
	if comments == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comments are required when rejecting a change")
	}
	change, err := s.loadChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.Status != models.ChangeStatusPending {
		return nil, appErrors.ErrAlreadyProcessed
	}

	now := time.Now().UTC()
	err = s.repo.ClaimPending(ctx, repository.ClaimParams{
		ID:         change.ID,
		Status:     models.ChangeStatusRejected,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
		Comments:   comments,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyProcessed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim change")
	}

	change.Status = models.ChangeStatusRejected
	change.ReviewedBy = &actor.UserID
	change.ReviewedAt = &now
	change.ReviewComments = &comments
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionChangeReview,
		Resource:   string(change.Entity),
		ResourceID: &change.ID,
		NewValues:  change.ProposedFields,
	})
	s.invalidateStats(ctx)
	return change, nil
}

// Get returns a change, restricting non-privileged actors to their own
// submissions.
func (s *ChangeService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PendingChange, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	change, err := s.loadChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.isPrivileged(actor.Role) && change.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return change, nil
}

// List returns changes matching the query. Privileged actors see all
// changes; everyone else sees only their own. Status defaults to PENDING;
// the literal "all" lifts the status filter.
func (s *ChangeService) List(ctx context.Context, query dto.ChangeQuery, actor *models.JWTClaims) ([]models.PendingChange, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ChangeFilter{
		Status: query.Status,
		Entity: query.Entity,
		Type:   query.Type,
	}
	if len(filter.Status) == 0 {
		filter.Status = []models.ChangeStatus{models.ChangeStatusPending}
	}
	if !s.isPrivileged(actor.Role) {
		filter.RequestedBy = actor.UserID
	}
	changes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list changes")
	}
	return changes, nil
}

// Stats aggregates workflow counters. Results are cached per user because
// the myPending figure is actor specific.
func (s *ChangeService) Stats(ctx context.Context, actor *models.JWTClaims) (*dto.ChangeStatsResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	cacheKey := statsCachePrefix + actor.UserID
	if s.cache != nil {
		var cached dto.ChangeStatsResponse
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count changes by status")
	}
	byType, err := s.repo.CountByType(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count changes by type")
	}
	myPending, err := s.repo.CountPendingByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending changes")
	}

	stats := &dto.ChangeStatsResponse{
		Total: dto.ChangeStatusTotals{
			Pending:     byStatus[models.ChangeStatusPending],
			Approved:    byStatus[models.ChangeStatusApproved],
			Rejected:    byStatus[models.ChangeStatusRejected],
			ApplyFailed: byStatus[models.ChangeStatusApplyFailed],
		},
		ByType:    byType,
		MyPending: myPending,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("failed to cache change stats", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *ChangeService) loadChange(ctx context.Context, id string) (*models.PendingChange, error) {
	change, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change")
	}
	return change, nil
}

func (s *ChangeService) isPrivileged(role models.UserRole) bool {
	return privilegedRole(role, s.cfg.PrivilegedRoles)
}

func privilegedRole(role models.UserRole, privileged []string) bool {
	for _, candidate := range privileged {
		if strings.EqualFold(string(role), candidate) {
			return true
		}
	}
	return false
}

// auditActor resolves whose identity lands on the target's last_change.
func (s *ChangeService) auditActor(change *models.PendingChange, reviewer *models.JWTClaims) string {
	if s.cfg.AuditActor == "requester" {
		return change.RequestedBy
	}
	return reviewer.UserID
}

func (s *ChangeService) failApply(ctx context.Context, id string, cause error) {
	s.logger.Error("applying approved change failed", zap.String("change_id", id), zap.Error(cause))
	if err := s.repo.MarkApplyFailed(ctx, id); err != nil {
		s.logger.Error("failed to mark change apply failure", zap.String("change_id", id), zap.Error(err))
	}
}

func (s *ChangeService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "change-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ChangeService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate change stats cache", zap.Error(err))
	}
}

func decodeProposed(raw json.RawMessage) map[string]interface{} {
	var proposed map[string]interface{}
	if err := json.Unmarshal(raw, &proposed); err != nil {
		return nil
	}
	return proposed
}

func describeChange(req dto.SubmitChangeRequest, snapshot map[string]interface{}) string {
	label := strings.ToLower(strings.ReplaceAll(string(req.Type), "_", " "))
	if req.EntityID == "" {
		return fmt.Sprintf("%s (new %s)", label, req.Entity)
	}
	if snapshot != nil {
		if name, ok := snapshot["name"].(string); ok && name != "" {
			return fmt.Sprintf("%s for %s %q", label, req.Entity, name)
		}
	}
	return fmt.Sprintf("%s for %s %s", label, req.Entity, req.EntityID)
}
