package models

import (
	"github.com/google/uuid"
)

// Video asset lifecycle states written by the (external) ingestion
// pipeline. The gateway only reads them.
const (
	VideoStatusPending    = "pending"
	VideoStatusProcessing = "processing"
	VideoStatusReady      = "ready"
	VideoStatusFailed     = "failed"
)

// VideoAsset is an uploaded video the ingestion pipeline has (or has not)
// finished analyzing. Summary and DurationSeconds feed the "Video Context"
// block prepended to queries that reference the asset.
type VideoAsset struct {
	BaseModel
	UserID          uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Status          string    `gorm:"size:16;index;not null" json:"status"`
	FileName        string    `json:"file_name"`
	Summary         string    `gorm:"type:text" json:"summary"`
	DurationSeconds int       `json:"duration_seconds"`
}
