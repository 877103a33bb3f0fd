package service

import (
	"context"
	"errors"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/repository"
)

// MaxAnalysisBytes bounds a stored analysis payload.
const MaxAnalysisBytes = 4 << 20

// SaveAnalysis stores payload for an owned image, replacing any earlier
// result. The bytes are kept exactly as received.
func (s *ImageService) SaveAnalysis(ctx context.Context, userID, imageID string, version int, contentType string, payload []byte) (model.Analysis, error) {
	details := map[string]string{}
	if version < 1 {
		details["version"] = "must be a positive integer"
	}
	if len(payload) == 0 {
		details["body"] = "must not be empty"
	} else if len(payload) > MaxAnalysisBytes {
		details["body"] = "is too large"
	}
	if len(details) > 0 {
		return model.Analysis{}, apperr.Validation("Invalid analysis", details)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.Get(ctx, userID, imageID); err != nil {
		return model.Analysis{}, err
	}
	a := model.Analysis{
		ImageID:       imageID,
		SchemaVersion: version,
		ContentType:   contentType,
		Payload:       payload,
		UpdatedAt:     s.now(),
	}
	if err := s.images.SaveAnalysis(ctx, a); err != nil {
		return model.Analysis{}, apperr.Internal("save analysis", err)
	}
	return a, nil
}

func (s *ImageService) GetAnalysis(ctx context.Context, userID, imageID string) (model.Analysis, error) {
	if _, err := s.Get(ctx, userID, imageID); err != nil {
		return model.Analysis{}, err
	}
	a, err := s.images.GetAnalysis(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Analysis{}, apperr.NotFound("No analysis for this image")
		}
		return model.Analysis{}, apperr.Internal("load analysis", err)
	}
	return a, nil
}
