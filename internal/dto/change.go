package dto

import (
	"encoding/json"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// SubmitChangeRequest is the payload for routing a mutation through the
// change workflow. EntityID is empty for registrations.
type SubmitChangeRequest struct {
	Type     models.ChangeType   `json:"type" validate:"required"`
	Entity   models.TargetEntity `json:"entity" validate:"required"`
	EntityID string              `json:"entityId"`
	Fields   json.RawMessage     `json:"fields" validate:"required"`
}

// SubmitChangeResponse reports whether the mutation was applied directly or
// deferred into the review queue.
type SubmitChangeResponse struct {
	Applied   bool   `json:"applied"`
	PendingID string `json:"pendingId,omitempty"`
}

// ReviewChangeRequest captures the reviewer's comments for a transition.
type ReviewChangeRequest struct {
	Comments string `json:"comments"`
}

// ChangeQuery mirrors supported listing filters.
type ChangeQuery struct {
	Status []models.ChangeStatus
	Entity models.TargetEntity
	Type   models.ChangeType
}

// ChangeStatusTotals breaks down change counts per workflow state.
type ChangeStatusTotals struct {
	Pending     int `json:"pending"`
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
	ApplyFailed int `json:"applyFailed"`
}

// ChangeStatsResponse is the read-only projection over the change store.
type ChangeStatsResponse struct {
	Total     ChangeStatusTotals       `json:"total"`
	ByType    []models.ChangeTypeCount `json:"byType"`
	MyPending int                      `json:"myPending"`
}
