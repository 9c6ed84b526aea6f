package dto

import "time"

// CreateExportRequest asks for a change-register export.
type CreateExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	Status string `json:"status"`
}

// ExportJobResponse reports the state of a queued export.
type ExportJobResponse struct {
	ID          string     `json:"id"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	FileName    string     `json:"fileName,omitempty"`
	Error       string     `json:"error,omitempty"`
	RequestedBy string     `json:"requestedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
