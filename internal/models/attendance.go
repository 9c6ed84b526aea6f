package models

import "time"

// Attendance holds one employee's attendance summary for a payroll period.
// Period uses the YYYY-MM form; one row per (employee, period).
type Attendance struct {
	ID            string    `db:"id" json:"id"`
	EmployeeID    string    `db:"employee_id" json:"employeeId"`
	UnitID        string    `db:"unit_id" json:"unitId"`
	Period        string    `db:"period" json:"period"`
	DaysPresent   float64   `db:"days_present" json:"daysPresent"`
	DaysAbsent    float64   `db:"days_absent" json:"daysAbsent"`
	OvertimeHours float64   `db:"overtime_hours" json:"overtimeHours"`
	LastChange    []byte    `db:"last_change" json:"lastChange,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// FieldMap exposes the attendance row's auditable fields.
func (a *Attendance) FieldMap() map[string]interface{} {
	return map[string]interface{}{
		"employeeId":    a.EmployeeID,
		"unitId":        a.UnitID,
		"period":        a.Period,
		"daysPresent":   a.DaysPresent,
		"daysAbsent":    a.DaysAbsent,
		"overtimeHours": a.OvertimeHours,
	}
}
