package models

import "time"

// Employee represents a payroll employee record.
type Employee struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	ESICNumber  string     `db:"esic_number" json:"esicNumber"`
	PFNumber    string     `db:"pf_number" json:"pfNumber"`
	UANNumber   string     `db:"uan_number" json:"uanNumber"`
	Designation string     `db:"designation" json:"designation"`
	UnitID      string     `db:"unit_id" json:"unitId"`
	BankAccount string     `db:"bank_account" json:"bankAccount"`
	IFSCCode    string     `db:"ifsc_code" json:"ifscCode"`
	BasicPay    float64    `db:"basic_pay" json:"basicPay"`
	JoiningDate *time.Time `db:"joining_date" json:"joiningDate,omitempty"`
	Active      bool       `db:"active" json:"active"`
	LastChange  []byte     `db:"last_change" json:"lastChange,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// FieldMap exposes the employee's auditable fields keyed by their JSON names.
// Dates are normalised to YYYY-MM-DD so stored and proposed values compare
// as equal strings.
func (e *Employee) FieldMap() map[string]interface{} {
	m := map[string]interface{}{
		"name":        e.Name,
		"esicNumber":  e.ESICNumber,
		"pfNumber":    e.PFNumber,
		"uanNumber":   e.UANNumber,
		"designation": e.Designation,
		"unitId":      e.UnitID,
		"bankAccount": e.BankAccount,
		"ifscCode":    e.IFSCCode,
		"basicPay":    e.BasicPay,
		"active":      e.Active,
	}
	if e.JoiningDate != nil {
		m["joiningDate"] = e.JoiningDate.Format("2006-01-02")
	}
	return m
}
