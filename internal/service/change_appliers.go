package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
	appErrors "github.com/Mentrauz/OpenRoll-sub000/pkg/errors"
)

// ChangeApplier is the typed accessor for one target entity. Snapshot feeds
// the audit diff; Apply performs the actual write, stamping the target row's
// last_change trail. An empty entityID means a creation.
type ChangeApplier interface {
	WatchedKeys() []string
	Snapshot(ctx context.Context, entityID string) (map[string]interface{}, error)
	Apply(ctx context.Context, entityID string, payload map[string]json.RawMessage, trail models.AuditTrail) (string, error)
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type employeeStore interface {
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	ExistsByESIC(ctx context.Context, esicNumber, excludeID string) (bool, error)
	Create(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
}

// EmployeeChangeApplier mutates employee records from change payloads.
type EmployeeChangeApplier struct {
	repo   employeeStore
	logger *zap.Logger
}

// NewEmployeeChangeApplier constructs an applier backed by the employee repository.
func NewEmployeeChangeApplier(repo employeeStore, logger *zap.Logger) *EmployeeChangeApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmployeeChangeApplier{repo: repo, logger: logger}
}

// WatchedKeys returns the audited employee fields in diff order.
func (a *EmployeeChangeApplier) WatchedKeys() []string {
	return []string{"name", "esicNumber", "pfNumber", "uanNumber", "designation", "unitId", "bankAccount", "ifscCode", "basicPay", "joiningDate", "active"}
}

// Snapshot returns the employee's current auditable field values.
func (a *EmployeeChangeApplier) Snapshot(ctx context.Context, entityID string) (map[string]interface{}, error) {
	if entityID == "" {
		return nil, nil
	}
	employee, err := a.repo.FindByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	return employee.FieldMap(), nil
}

// Apply writes the proposed fields to the employee row.
func (a *EmployeeChangeApplier) Apply(ctx context.Context, entityID string, payload map[string]json.RawMessage, trail models.AuditTrail) (string, error) {
	var employee models.Employee
	if entityID != "" {
		existing, err := a.repo.FindByID(ctx, entityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Clone(appErrors.ErrNotFound, "employee not found")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
		}
		employee = *existing
	} else {
		employee.Active = true
	}
	changed := 0

	if str, ok, err := readString(payload, "name"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "name must be a string")
	} else if ok {
		employee.Name = *str
		changed++
	}
	if str, ok, err := readString(payload, "esicNumber", "esic_number"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "esicNumber must be a string")
	} else if ok {
		if *str != employee.ESICNumber {
			exists, err := a.repo.ExistsByESIC(ctx, *str, employee.ID)
			if err != nil {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate esic number")
			}
			if exists {
				return "", appErrors.Clone(appErrors.ErrConflict, "esic number already used")
			}
			employee.ESICNumber = *str
		}
		changed++
	}
	if str, ok, err := readString(payload, "pfNumber", "pf_number"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "pfNumber must be a string")
	} else if ok {
		employee.PFNumber = *str
		changed++
	}
	if str, ok, err := readString(payload, "uanNumber", "uan_number"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "uanNumber must be a string")
	} else if ok {
		employee.UANNumber = *str
		changed++
	}
	if str, ok, err := readString(payload, "designation"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "designation must be a string")
	} else if ok {
		employee.Designation = *str
		changed++
	}
	if str, ok, err := readString(payload, "unitId", "unit_id"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "unitId must be a string")
	} else if ok {
		employee.UnitID = *str
		changed++
	}
	if str, ok, err := readString(payload, "bankAccount", "bank_account"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "bankAccount must be a string")
	} else if ok {
		employee.BankAccount = *str
		changed++
	}
	if str, ok, err := readString(payload, "ifscCode", "ifsc_code"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "ifscCode must be a string")
	} else if ok {
		employee.IFSCCode = strings.ToUpper(*str)
		changed++
	}
	if val, ok, err := readFloat(payload, "basicPay", "basic_pay"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "basicPay must be a number")
	} else if ok {
		if val < 0 {
			return "", appErrors.Clone(appErrors.ErrValidation, "basicPay must not be negative")
		}
		employee.BasicPay = val
		changed++
	}
	if str, ok, err := readString(payload, "joiningDate", "joining_date"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "joiningDate must be a string")
	} else if ok {
		ts, err := time.Parse("2006-01-02", *str)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, "joiningDate must be YYYY-MM-DD")
		}
		employee.JoiningDate = &ts
		changed++
	}
	if val, ok, err := readBool(payload, "active"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "active must be a boolean")
	} else if ok {
		employee.Active = val
		changed++
	}

	if changed == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "no supported employee fields provided")
	}
	if entityID == "" && employee.Name == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "name is required for employee registration")
	}

	employee.LastChange = marshalTrail(trail, a.logger)
	if entityID == "" {
		if err := a.repo.Create(ctx, &employee); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
		}
	} else {
		if err := a.repo.Update(ctx, &employee); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
		}
	}
	return employee.ID, nil
}

type unitStore interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, unit *models.Unit) error
	Update(ctx context.Context, unit *models.Unit) error
}

// UnitChangeApplier mutates business unit records from change payloads.
type UnitChangeApplier struct {
	repo   unitStore
	logger *zap.Logger
}

// NewUnitChangeApplier constructs an applier backed by the unit repository.
func NewUnitChangeApplier(repo unitStore, logger *zap.Logger) *UnitChangeApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitChangeApplier{repo: repo, logger: logger}
}

// WatchedKeys returns the audited unit fields in diff order.
func (a *UnitChangeApplier) WatchedKeys() []string {
	return []string{"name", "code", "address", "gstNumber", "contactEmail", "active"}
}

// Snapshot returns the unit's current auditable field values.
func (a *UnitChangeApplier) Snapshot(ctx context.Context, entityID string) (map[string]interface{}, error) {
	if entityID == "" {
		return nil, nil
	}
	unit, err := a.repo.FindByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	return unit.FieldMap(), nil
}

// Apply writes the proposed fields to the unit row.
func (a *UnitChangeApplier) Apply(ctx context.Context, entityID string, payload map[string]json.RawMessage, trail models.AuditTrail) (string, error) {
	var unit models.Unit
	if entityID != "" {
		existing, err := a.repo.FindByID(ctx, entityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Clone(appErrors.ErrNotFound, "unit not found")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
		}
		unit = *existing
	} else {
		unit.Active = true
	}
	changed := 0

	if str, ok, err := readString(payload, "name"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "name must be a string")
	} else if ok {
		unit.Name = *str
		changed++
	}
	if str, ok, err := readString(payload, "code"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "code must be a string")
	} else if ok {
		code := strings.ToUpper(*str)
		if code != unit.Code {
			exists, err := a.repo.ExistsByCode(ctx, code, unit.ID)
			if err != nil {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate unit code")
			}
			if exists {
				return "", appErrors.Clone(appErrors.ErrConflict, "unit code already used")
			}
			unit.Code = code
		}
		changed++
	}
	if str, ok, err := readString(payload, "address"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "address must be a string")
	} else if ok {
		unit.Address = *str
		changed++
	}
	if str, ok, err := readString(payload, "gstNumber", "gst_number"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "gstNumber must be a string")
	} else if ok {
		unit.GSTNumber = strings.ToUpper(*str)
		changed++
	}
	if str, ok, err := readString(payload, "contactEmail", "contact_email"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "contactEmail must be a string")
	} else if ok {
		unit.ContactEmail = *str
		changed++
	}
	if val, ok, err := readBool(payload, "active"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "active must be a boolean")
	} else if ok {
		unit.Active = val
		changed++
	}

	if changed == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "no supported unit fields provided")
	}
	if entityID == "" && unit.Name == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "name is required for unit registration")
	}

	unit.LastChange = marshalTrail(trail, a.logger)
	if entityID == "" {
		if err := a.repo.Create(ctx, &unit); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unit")
		}
	} else {
		if err := a.repo.Update(ctx, &unit); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update unit")
		}
	}
	return unit.ID, nil
}

type attendanceStore interface {
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	FindByEmployeePeriod(ctx context.Context, employeeID, period string) (*models.Attendance, error)
	Upsert(ctx context.Context, record *models.Attendance) error
}

// AttendanceChangeApplier upserts attendance summaries. A payload carrying a
// rows array is treated as a bulk upload; otherwise it marks one record.
type AttendanceChangeApplier struct {
	repo   attendanceStore
	logger *zap.Logger
}

// NewAttendanceChangeApplier constructs an applier backed by the attendance repository.
func NewAttendanceChangeApplier(repo attendanceStore, logger *zap.Logger) *AttendanceChangeApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceChangeApplier{repo: repo, logger: logger}
}

// WatchedKeys returns the audited attendance fields in diff order.
func (a *AttendanceChangeApplier) WatchedKeys() []string {
	return []string{"employeeId", "unitId", "period", "daysPresent", "daysAbsent", "overtimeHours"}
}

// Snapshot returns the attendance row's current auditable field values.
func (a *AttendanceChangeApplier) Snapshot(ctx context.Context, entityID string) (map[string]interface{}, error) {
	if entityID == "" {
		return nil, nil
	}
	record, err := a.repo.FindByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record.FieldMap(), nil
}

// Apply upserts one or many attendance summaries from the payload.
func (a *AttendanceChangeApplier) Apply(ctx context.Context, entityID string, payload map[string]json.RawMessage, trail models.AuditTrail) (string, error) {
	if raw, ok := payload["rows"]; ok {
		var rows []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, "rows must be an array of attendance entries")
		}
		if len(rows) == 0 {
			return "", appErrors.Clone(appErrors.ErrValidation, "rows must not be empty")
		}
		lastID := ""
		for _, row := range rows {
			id, err := a.applyOne(ctx, "", row, trail)
			if err != nil {
				return "", err
			}
			lastID = id
		}
		return lastID, nil
	}
	return a.applyOne(ctx, entityID, payload, trail)
}

func (a *AttendanceChangeApplier) applyOne(ctx context.Context, entityID string, payload map[string]json.RawMessage, trail models.AuditTrail) (string, error) {
	var record models.Attendance
	if entityID != "" {
		existing, err := a.repo.FindByID(ctx, entityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
		}
		record = *existing
	}
	changed := 0

	if str, ok, err := readString(payload, "employeeId", "employee_id"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "employeeId must be a string")
	} else if ok {
		record.EmployeeID = *str
		changed++
	}
	if str, ok, err := readString(payload, "period"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "period must be a string")
	} else if ok {
		if !periodPattern.MatchString(*str) {
			return "", appErrors.Clone(appErrors.ErrValidation, "period must be YYYY-MM")
		}
		record.Period = *str
		changed++
	}

	// Marks for a period that already has a row should merge, not clobber
	// the values the payload leaves out.
	if entityID == "" && record.EmployeeID != "" && record.Period != "" {
		existing, err := a.repo.FindByEmployeePeriod(ctx, record.EmployeeID, record.Period)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
		}
		if existing != nil {
			merged := *existing
			merged.EmployeeID = record.EmployeeID
			merged.Period = record.Period
			record = merged
		}
	}

	if str, ok, err := readString(payload, "unitId", "unit_id"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "unitId must be a string")
	} else if ok {
		record.UnitID = *str
		changed++
	}
	if val, ok, err := readFloat(payload, "daysPresent", "days_present"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "daysPresent must be a number")
	} else if ok {
		record.DaysPresent = val
		changed++
	}
	if val, ok, err := readFloat(payload, "daysAbsent", "days_absent"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "daysAbsent must be a number")
	} else if ok {
		record.DaysAbsent = val
		changed++
	}
	if val, ok, err := readFloat(payload, "overtimeHours", "overtime_hours"); err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "overtimeHours must be a number")
	} else if ok {
		record.OvertimeHours = val
		changed++
	}

	if changed == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "no supported attendance fields provided")
	}
	if record.EmployeeID == "" || record.Period == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "employeeId and period are required")
	}
	if record.DaysPresent < 0 || record.DaysAbsent < 0 || record.OvertimeHours < 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "attendance values must not be negative")
	}

	record.LastChange = marshalTrail(trail, a.logger)
	if err := a.repo.Upsert(ctx, &record); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write attendance record")
	}
	return record.ID, nil
}

func marshalTrail(trail models.AuditTrail, logger *zap.Logger) []byte {
	raw, err := json.Marshal(trail)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to marshal audit trail", zap.Error(err))
		}
		return []byte("{}")
	}
	return raw
}

func readString(payload map[string]json.RawMessage, keys ...string) (*string, bool, error) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			var val string
			if err := json.Unmarshal(raw, &val); err != nil {
				return nil, false, err
			}
			val = strings.TrimSpace(val)
			return &val, true, nil
		}
	}
	return nil, false, nil
}

func readBool(payload map[string]json.RawMessage, keys ...string) (bool, bool, error) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			var val bool
			if err := json.Unmarshal(raw, &val); err != nil {
				return false, false, err
			}
			return val, true, nil
		}
	}
	return false, false, nil
}

func readFloat(payload map[string]json.RawMessage, keys ...string) (float64, bool, error) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			var val float64
			if err := json.Unmarshal(raw, &val); err != nil {
				return 0, false, err
			}
			return val, true, nil
		}
	}
	return 0, false, nil
}
