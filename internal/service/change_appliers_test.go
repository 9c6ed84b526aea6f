package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
)

func rawPayload(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	return payload
}

type employeeStoreStub struct {
	employees map[string]*models.Employee
	esicTaken bool
	created   []*models.Employee
	updated   []*models.Employee
}

func newEmployeeStoreStub() *employeeStoreStub {
	return &employeeStoreStub{employees: make(map[string]*models.Employee)}
}

func (s *employeeStoreStub) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	if employee, ok := s.employees[id]; ok {
		copied := *employee
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *employeeStoreStub) ExistsByESIC(ctx context.Context, esicNumber, excludeID string) (bool, error) {
	return s.esicTaken, nil
}

func (s *employeeStoreStub) Create(ctx context.Context, employee *models.Employee) error {
	employee.ID = "emp-new"
	s.created = append(s.created, employee)
	return nil
}

func (s *employeeStoreStub) Update(ctx context.Context, employee *models.Employee) error {
	s.updated = append(s.updated, employee)
	return nil
}

func TestEmployeeApplierUpdateFields(t *testing.T) {
	store := newEmployeeStoreStub()
	store.employees["emp-1"] = &models.Employee{ID: "emp-1", Name: "Asha", Designation: "Clerk", IFSCCode: "HDFC0001", Active: true}
	applier := NewEmployeeChangeApplier(store, nil)

	trail := models.AuditTrail{UpdatedBy: "admin-1", Changes: []models.FieldChange{{Field: "designation", From: "Clerk", To: "Manager"}}}
	id, err := applier.Apply(context.Background(), "emp-1", rawPayload(t, `{"designation":"Manager","ifscCode":"sbin0099","basicPay":21000}`), trail)
	require.NoError(t, err)
	require.Equal(t, "emp-1", id)
	require.Len(t, store.updated, 1)

	updated := store.updated[0]
	require.Equal(t, "Manager", updated.Designation)
	require.Equal(t, "SBIN0099", updated.IFSCCode)
	require.Equal(t, 21000.0, updated.BasicPay)
	require.Equal(t, "Asha", updated.Name, "untouched fields keep their value")

	var stored models.AuditTrail
	require.NoError(t, json.Unmarshal(updated.LastChange, &stored))
	require.Equal(t, "admin-1", stored.UpdatedBy)
	require.Len(t, stored.Changes, 1)
}

func TestEmployeeApplierRegistrationDefaultsActive(t *testing.T) {
	store := newEmployeeStoreStub()
	applier := NewEmployeeChangeApplier(store, nil)

	id, err := applier.Apply(context.Background(), "", rawPayload(t, `{"name":"New Hire","basicPay":15000}`), models.AuditTrail{UpdatedBy: "admin-1"})
	require.NoError(t, err)
	require.Equal(t, "emp-new", id)
	require.Len(t, store.created, 1)
	require.True(t, store.created[0].Active)
}

func TestEmployeeApplierRegistrationRequiresName(t *testing.T) {
	applier := NewEmployeeChangeApplier(newEmployeeStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"basicPay":15000}`), models.AuditTrail{})
	require.Error(t, err)
}

func TestEmployeeApplierESICConflict(t *testing.T) {
	store := newEmployeeStoreStub()
	store.employees["emp-1"] = &models.Employee{ID: "emp-1", Name: "Asha", ESICNumber: "11-22"}
	store.esicTaken = true
	applier := NewEmployeeChangeApplier(store, nil)

	_, err := applier.Apply(context.Background(), "emp-1", rawPayload(t, `{"esicNumber":"33-44"}`), models.AuditTrail{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEmployeeApplierUnknownTarget(t *testing.T) {
	applier := NewEmployeeChangeApplier(newEmployeeStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "missing", rawPayload(t, `{"name":"x"}`), models.AuditTrail{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEmployeeApplierRejectsUnsupportedOnlyPayload(t *testing.T) {
	store := newEmployeeStoreStub()
	store.employees["emp-1"] = &models.Employee{ID: "emp-1", Name: "Asha"}
	applier := NewEmployeeChangeApplier(store, nil)

	_, err := applier.Apply(context.Background(), "emp-1", rawPayload(t, `{"shoeSize":42}`), models.AuditTrail{})
	require.Error(t, err)
	require.Empty(t, store.updated)
}

func TestEmployeeApplierRejectsNegativePay(t *testing.T) {
	store := newEmployeeStoreStub()
	store.employees["emp-1"] = &models.Employee{ID: "emp-1", Name: "Asha"}
	applier := NewEmployeeChangeApplier(store, nil)

	_, err := applier.Apply(context.Background(), "emp-1", rawPayload(t, `{"basicPay":-5}`), models.AuditTrail{})
	require.Error(t, err)
}

type unitStoreStub struct {
	units     map[string]*models.Unit
	codeTaken bool
	created   []*models.Unit
	updated   []*models.Unit
}

func newUnitStoreStub() *unitStoreStub {
	return &unitStoreStub{units: make(map[string]*models.Unit)}
}

func (s *unitStoreStub) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	if unit, ok := s.units[id]; ok {
		copied := *unit
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *unitStoreStub) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return s.codeTaken, nil
}

func (s *unitStoreStub) Create(ctx context.Context, unit *models.Unit) error {
	unit.ID = "unit-new"
	s.created = append(s.created, unit)
	return nil
}

func (s *unitStoreStub) Update(ctx context.Context, unit *models.Unit) error {
	s.updated = append(s.updated, unit)
	return nil
}

func TestUnitApplierNormalisesCodeAndGST(t *testing.T) {
	store := newUnitStoreStub()
	applier := NewUnitChangeApplier(store, nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"name":"Plant 2","code":"pl2","gstNumber":"27aaapl1234c1z5"}`), models.AuditTrail{})
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	require.Equal(t, "PL2", store.created[0].Code)
	require.Equal(t, "27AAAPL1234C1Z5", store.created[0].GSTNumber)
}

func TestUnitApplierCodeConflict(t *testing.T) {
	store := newUnitStoreStub()
	store.units["unit-1"] = &models.Unit{ID: "unit-1", Name: "Plant 1", Code: "PL1"}
	store.codeTaken = true
	applier := NewUnitChangeApplier(store, nil)

	_, err := applier.Apply(context.Background(), "unit-1", rawPayload(t, `{"code":"PL9"}`), models.AuditTrail{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

type attendanceStoreStub struct {
	records  map[string]*models.Attendance
	byPeriod *models.Attendance
	upserted []*models.Attendance
}

func newAttendanceStoreStub() *attendanceStoreStub {
	return &attendanceStoreStub{records: make(map[string]*models.Attendance)}
}

func (s *attendanceStoreStub) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	if record, ok := s.records[id]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceStoreStub) FindByEmployeePeriod(ctx context.Context, employeeID, period string) (*models.Attendance, error) {
	if s.byPeriod != nil && s.byPeriod.EmployeeID == employeeID && s.byPeriod.Period == period {
		copied := *s.byPeriod
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceStoreStub) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = "att-new"
	}
	s.upserted = append(s.upserted, record)
	return nil
}

func TestAttendanceApplierSingleMark(t *testing.T) {
	store := newAttendanceStoreStub()
	applier := NewAttendanceChangeApplier(store, nil)

	id, err := applier.Apply(context.Background(), "", rawPayload(t, `{"employeeId":"emp-1","period":"2026-08","daysPresent":22,"overtimeHours":4.5}`), models.AuditTrail{UpdatedBy: "admin-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, store.upserted, 1)
	require.Equal(t, "2026-08", store.upserted[0].Period)
	require.Equal(t, 22.0, store.upserted[0].DaysPresent)
}

func TestAttendanceApplierMergesExistingPeriod(t *testing.T) {
	store := newAttendanceStoreStub()
	store.byPeriod = &models.Attendance{
		ID:          "att-1",
		EmployeeID:  "emp-1",
		Period:      "2026-08",
		DaysPresent: 20,
		DaysAbsent:  2,
	}
	applier := NewAttendanceChangeApplier(store, nil)

	id, err := applier.Apply(context.Background(), "", rawPayload(t, `{"employeeId":"emp-1","period":"2026-08","overtimeHours":3}`), models.AuditTrail{})
	require.NoError(t, err)
	require.Equal(t, "att-1", id)
	require.Len(t, store.upserted, 1)
	require.Equal(t, 20.0, store.upserted[0].DaysPresent)
	require.Equal(t, 3.0, store.upserted[0].OvertimeHours)
}

func TestAttendanceApplierBulkRows(t *testing.T) {
	store := newAttendanceStoreStub()
	applier := NewAttendanceChangeApplier(store, nil)

	payload := rawPayload(t, `{"rows":[
		{"employeeId":"emp-1","period":"2026-08","daysPresent":20},
		{"employeeId":"emp-2","period":"2026-08","daysPresent":18,"daysAbsent":2}
	]}`)
	_, err := applier.Apply(context.Background(), "", payload, models.AuditTrail{})
	require.NoError(t, err)
	require.Len(t, store.upserted, 2)
	require.Equal(t, "emp-2", store.upserted[1].EmployeeID)
}

func TestAttendanceApplierRejectsBadPeriod(t *testing.T) {
	applier := NewAttendanceChangeApplier(newAttendanceStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"employeeId":"emp-1","period":"Aug 2026","daysPresent":20}`), models.AuditTrail{})
	require.Error(t, err)
}

func TestAttendanceApplierRequiresEmployeeAndPeriod(t *testing.T) {
	applier := NewAttendanceChangeApplier(newAttendanceStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"daysPresent":20}`), models.AuditTrail{})
	require.Error(t, err)
}

func TestAttendanceApplierRejectsNegativeValues(t *testing.T) {
	applier := NewAttendanceChangeApplier(newAttendanceStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"employeeId":"emp-1","period":"2026-08","daysAbsent":-1}`), models.AuditTrail{})
	require.Error(t, err)
}

func TestAttendanceApplierRejectsEmptyBulk(t *testing.T) {
	applier := NewAttendanceChangeApplier(newAttendanceStoreStub(), nil)

	_, err := applier.Apply(context.Background(), "", rawPayload(t, `{"rows":[]}`), models.AuditTrail{})
	require.Error(t, err)
}
