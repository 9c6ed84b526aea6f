package models

import (
	"encoding/json"
	"time"
)

// ChangeType classifies what a change proposes to do.
type ChangeType string

const (
	ChangeTypeEmployeeRegistration ChangeType = "EMPLOYEE_REGISTRATION"
	ChangeTypeEmployeeUpdate       ChangeType = "EMPLOYEE_UPDATE"
	ChangeTypeUnitRegistration     ChangeType = "UNIT_REGISTRATION"
	ChangeTypeUnitUpdate           ChangeType = "UNIT_UPDATE"
	ChangeTypeAttendanceMark       ChangeType = "ATTENDANCE_MARK"
	ChangeTypeBulkUpload           ChangeType = "BULK_UPLOAD"
)

// ValidChangeType reports whether t is a known change type.
func ValidChangeType(t ChangeType) bool {
	switch t {
	case ChangeTypeEmployeeRegistration, ChangeTypeEmployeeUpdate,
		ChangeTypeUnitRegistration, ChangeTypeUnitUpdate,
		ChangeTypeAttendanceMark, ChangeTypeBulkUpload:
		return true
	}
	return false
}

// TargetEntity names the record kind a change operates on. The set is
// closed; change routing resolves an entity to its typed applier.
type TargetEntity string

const (
	EntityEmployee   TargetEntity = "employee"
	EntityUnit       TargetEntity = "unit"
	EntityAttendance TargetEntity = "attendance"
)

// ValidTargetEntity reports whether e is a known target entity.
func ValidTargetEntity(e TargetEntity) bool {
	switch e {
	case EntityEmployee, EntityUnit, EntityAttendance:
		return true
	}
	return false
}

// ChangeStatus is the workflow state of a change. Transitions out of
// PENDING are terminal except APPROVED, which may degrade to APPLY_FAILED
// when the target write fails after the approval was recorded.
type ChangeStatus string

const (
	ChangeStatusPending     ChangeStatus = "PENDING"
	ChangeStatusApproved    ChangeStatus = "APPROVED"
	ChangeStatusRejected    ChangeStatus = "REJECTED"
	ChangeStatusApplyFailed ChangeStatus = "APPLY_FAILED"
)

// PendingChange is a proposed mutation captured for review. The proposed
// fields and the snapshot taken at submission time are stored verbatim so
// reviewers see exactly what was requested against what existed then.
type PendingChange struct {
	ID              string          `db:"id" json:"id"`
	Type            ChangeType      `db:"type" json:"type"`
	Entity          TargetEntity    `db:"entity" json:"entity"`
	EntityID        string          `db:"entity_id" json:"entityId,omitempty"`
	ProposedFields  json.RawMessage `db:"proposed_fields" json:"proposedFields"`
	CurrentSnapshot json.RawMessage `db:"current_snapshot" json:"currentSnapshot,omitempty"`
	Description     string          `db:"description" json:"description"`
	Status          ChangeStatus    `db:"status" json:"status"`
	RequestedBy     string          `db:"requested_by" json:"requestedBy"`
	RequestedByRole UserRole        `db:"requested_by_role" json:"requestedByRole"`
	RequestedAt     time.Time       `db:"requested_at" json:"requestedAt"`
	ReviewedBy      *string         `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewComments  *string         `db:"review_comments" json:"reviewComments,omitempty"`
}

// ChangeFilter narrows change listings.
type ChangeFilter struct {
	Status      []ChangeStatus
	Entity      TargetEntity
	Type        ChangeType
	EntityID    string
	RequestedBy string
	ReviewerID  string
	Limit       int
	Offset      int
}

// FieldChange is one audited field delta. From is nil for registrations.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// AuditTrail is the last_change payload stamped onto mutated target rows.
type AuditTrail struct {
	UpdatedBy string        `json:"updatedBy"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Changes   []FieldChange `json:"changes"`
}

// ChangeTypeCount pairs a change type with its row count.
type ChangeTypeCount struct {
	Type  ChangeType `db:"type" json:"type"`
	Count int        `db:"count" json:"count"`
}
