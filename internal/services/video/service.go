// Package video exposes the read-only view of the (external) video
// ingestion pipeline that the router consumes: which referenced assets
// are ready, and a compact context block describing them.
package video

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prismgw/prism/internal/models"
)

// Artifact is the compact metadata the router injects into the prompt.
type Artifact struct {
	ID              uuid.UUID
	FileName        string
	Summary         string
	DurationSeconds int
}

// Store lists ready artifacts for a caller. Assets that are missing, not
// owned by the caller or not yet processed are simply absent from the
// result.
type Store interface {
	ListReadyFor(ctx context.Context, assetIDs []uuid.UUID, userID uuid.UUID) ([]Artifact, error)
}

// ErrNotReady is returned when a request references assets that are not
// all ready; it maps to the machine-readable video_not_ready error.
type ErrNotReady struct {
	Requested int
	Ready     int
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("%d of %d referenced video assets are ready", e.Ready, e.Requested)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) ListReadyFor(ctx context.Context, assetIDs []uuid.UUID, userID uuid.UUID) ([]Artifact, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	var rows []models.VideoAsset
	err := s.db.WithContext(ctx).
		Where("id IN ? AND user_id = ? AND status = ?", assetIDs, userID, models.VideoStatusReady).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list video assets: %w", err)
	}

	artifacts := make([]Artifact, 0, len(rows))
	for _, row := range rows {
		artifacts = append(artifacts, Artifact{
			ID:              row.ID,
			FileName:        row.FileName,
			Summary:         row.Summary,
			DurationSeconds: row.DurationSeconds,
		})
	}
	return artifacts, nil
}

// ContextBlock renders the artifacts as the "Video Context" section
// prepended to the user query.
func ContextBlock(artifacts []Artifact) string {
	if len(artifacts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### Video Context\n")
	for _, a := range artifacts {
		sb.WriteString(fmt.Sprintf("- %s (%ds)", a.FileName, a.DurationSeconds))
		if a.Summary != "" {
			sb.WriteString(": ")
			sb.WriteString(a.Summary)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("### End Video Context")
	return sb.String()
}
