package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Mentrauz/OpenRoll-sub000/internal/dto"
	"github.com/Mentrauz/OpenRoll-sub000/internal/middleware"
	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
)

type stubChangeService struct {
	submitRes  *dto.SubmitChangeResponse
	submitErr  error
	listRes    []models.PendingChange
	listQuery  dto.ChangeQuery
	getRes     *models.PendingChange
	getErr     error
	approveRes *models.PendingChange
	approveErr error
	rejectErr  error
	statsRes   *dto.ChangeStatsResponse
}

func (s *stubChangeService) Submit(ctx context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*dto.SubmitChangeResponse, error) {
	return s.submitRes, s.submitErr
}

func (s *stubChangeService) List(ctx context.Context, query dto.ChangeQuery, actor *models.JWTClaims) ([]models.PendingChange, error) {
	s.listQuery = query
	return s.listRes, nil
}

func (s *stubChangeService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PendingChange, error) {
	return s.getRes, s.getErr
}

func (s *stubChangeService) Approve(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error) {
	return s.approveRes, s.approveErr
}

func (s *stubChangeService) Reject(ctx context.Context, id string, req dto.ReviewChangeRequest, actor *models.JWTClaims) (*models.PendingChange, error) {
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	return s.approveRes, nil
}

func (s *stubChangeService) Stats(ctx context.Context, actor *models.JWTClaims) (*dto.ChangeStatsResponse, error) {
	return s.statsRes, nil
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c, recorder
}

func TestChangeHandlerSubmitDeferredReturnsCreated(t *testing.T) {
	svc := &stubChangeService{submitRes: &dto.SubmitChangeResponse{Applied: false, PendingID: "chg-1"}}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodPost, "/changes", []byte(`{"type":"EMPLOYEE_UPDATE","entity":"employee","entityId":"emp-1","fields":{"designation":"Manager"}}`))
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	require.Contains(t, recorder.Body.String(), "chg-1")
}

func TestChangeHandlerSubmitAppliedReturnsOK(t *testing.T) {
	svc := &stubChangeService{submitRes: &dto.SubmitChangeResponse{Applied: true}}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodPost, "/changes", []byte(`{"type":"EMPLOYEE_UPDATE","entity":"employee","entityId":"emp-1","fields":{"designation":"Manager"}}`))
	handler.Submit(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"applied":true`)
}

func TestChangeHandlerSubmitInvalidJSON(t *testing.T) {
	handler := NewChangeHandler(&stubChangeService{})

	c, recorder := testContext(t, http.MethodPost, "/changes", []byte(`{not json`))
	handler.Submit(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestChangeHandlerListParsesQuery(t *testing.T) {
	svc := &stubChangeService{}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodGet, "/changes?status=pending,rejected&entity=Employee&type=employee_update", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, models.EntityEmployee, svc.listQuery.Entity)
	require.Equal(t, models.ChangeTypeEmployeeUpdate, svc.listQuery.Type)
	require.Equal(t, []models.ChangeStatus{models.ChangeStatusPending, models.ChangeStatusRejected}, svc.listQuery.Status)
}

func TestChangeHandlerListStatusAll(t *testing.T) {
	svc := &stubChangeService{}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodGet, "/changes?status=all", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, svc.listQuery.Status, 4)
}

func TestChangeHandlerApproveConflict(t *testing.T) {
	svc := &stubChangeService{approveErr: appErrors.ErrAlreadyProcessed}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodPost, "/changes/chg-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "chg-1"}}
	handler.Approve(c)

	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Contains(t, recorder.Body.String(), "ALREADY_PROCESSED")
}

func TestChangeHandlerRejectValidationError(t *testing.T) {
	svc := &stubChangeService{rejectErr: appErrors.Clone(appErrors.ErrValidation, "comments are required when rejecting a change")}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodPost, "/changes/chg-1/reject", []byte(`{"comments":""}`))
	c.Params = gin.Params{{Key: "id", Value: "chg-1"}}
	handler.Reject(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestChangeHandlerGetNotFound(t *testing.T) {
	svc := &stubChangeService{getErr: appErrors.Clone(appErrors.ErrNotFound, "change not found")}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodGet, "/changes/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestChangeHandlerStats(t *testing.T) {
	svc := &stubChangeService{statsRes: &dto.ChangeStatsResponse{
		Total:     dto.ChangeStatusTotals{Pending: 3},
		MyPending: 1,
	}}
	handler := NewChangeHandler(svc)

	c, recorder := testContext(t, http.MethodGet, "/changes/stats", nil)
	handler.Stats(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"pending":3`)
}
