package models

import "time"

// Unit represents a business unit (site/establishment) employees belong to.
type Unit struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	Address      string    `db:"address" json:"address"`
	GSTNumber    string    `db:"gst_number" json:"gstNumber"`
	ContactEmail string    `db:"contact_email" json:"contactEmail"`
	Active       bool      `db:"active" json:"active"`
	LastChange   []byte    `db:"last_change" json:"lastChange,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// FieldMap exposes the unit's auditable fields keyed by their JSON names.
func (u *Unit) FieldMap() map[string]interface{} {
	return map[string]interface{}{
		"name":         u.Name,
		"code":         u.Code,
		"address":      u.Address,
		"gstNumber":    u.GSTNumber,
		"contactEmail": u.ContactEmail,
		"active":       u.Active,
	}
}
