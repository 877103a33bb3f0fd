package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/platform"
	"github.com/iliyamo/photo-monetization/internal/queue"
	"github.com/iliyamo/photo-monetization/internal/repository"
)

const msgQueueUnavailable = "queue unavailable"

type DistributionStore interface {
	Create(ctx context.Context, d model.Distribution) error
	GetByID(ctx context.Context, id string) (model.Distribution, error)
	ListByImage(ctx context.Context, imageID string) ([]model.Distribution, error)
	MarkResult(ctx context.Context, id string, status model.DistributionStatus, externalID, lastError *string, now time.Time) error
}

type EventPublisher interface {
	PublishDistributionRequested(ctx context.Context, ev queue.DistributionRequestedEvent) error
}

type PlatformPublisher interface {
	Lookup(id string) (platform.Platform, bool)
	Publish(ctx context.Context, platformID string, req platform.Request) (string, error)
}

// DistributionService queues images for the stub platforms and records
// what the platforms answered.
type DistributionService struct {
	images    *ImageService
	dists     DistributionStore
	events    EventPublisher
	platforms PlatformPublisher
	log       logging.Logger
	now       func() time.Time
	newID     func() string
}

func NewDistributionService(images *ImageService, dists DistributionStore, events EventPublisher,
	platforms PlatformPublisher, log logging.Logger) *DistributionService {
	return &DistributionService{
		images:    images,
		dists:     dists,
		events:    events,
		platforms: platforms,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Request creates one queued distribution per platform and publishes an
// event for each. If the broker refuses an event, that row is marked
// failed straight away.
func (s *DistributionService) Request(ctx context.Context, userID, imageID string, platformIDs []string) ([]model.Distribution, error) {
	if _, err := s.images.Get(ctx, userID, imageID); err != nil {
		return nil, err
	}

	if len(platformIDs) == 0 {
		return nil, apperr.Validation("Invalid distribution request",
			map[string]string{"platforms": "must list at least one platform"})
	}
	seen := make(map[string]bool, len(platformIDs))
	ids := make([]string, 0, len(platformIDs))
	for _, id := range platformIDs {
		if _, ok := s.platforms.Lookup(id); !ok {
			return nil, apperr.Validation("Invalid distribution request",
				map[string]string{"platforms": fmt.Sprintf("unknown platform %q", id)})
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	out := make([]model.Distribution, 0, len(ids))
	for _, pid := range ids {
		now := s.now()
		d := model.Distribution{
			ID:        s.newID(),
			ImageID:   imageID,
			UserID:    userID,
			Platform:  pid,
			Status:    model.DistributionQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.dists.Create(ctx, d); err != nil {
			return nil, apperr.Internal("create distribution", err)
		}

		ev := queue.DistributionRequestedEvent{
			DistributionID: d.ID, ImageID: imageID, UserID: userID, Platform: pid, RequestedAt: now,
		}
		if err := s.events.PublishDistributionRequested(ctx, ev); err != nil {
			msg := msgQueueUnavailable
			if merr := s.dists.MarkResult(ctx, d.ID, model.DistributionFailed, nil, &msg, s.now()); merr != nil {
				s.log.Error(ctx, "mark distribution failed", "distribution_id", d.ID, "error", merr)
			}
			d.Status = model.DistributionFailed
			d.LastError = &msg
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *DistributionService) List(ctx context.Context, userID, imageID string) ([]model.Distribution, error) {
	if _, err := s.images.Get(ctx, userID, imageID); err != nil {
		return nil, err
	}
	ds, err := s.dists.ListByImage(ctx, imageID)
	if err != nil {
		return nil, apperr.Internal("list distributions", err)
	}
	return ds, nil
}

// HandleDistributionRequested is called by the queue consumer. Rows that
// are no longer queued are skipped so redelivered messages are harmless.
func (s *DistributionService) HandleDistributionRequested(ctx context.Context, ev queue.DistributionRequestedEvent) error {
	d, err := s.dists.GetByID(ctx, ev.DistributionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn(ctx, "distribution vanished before processing", "distribution_id", ev.DistributionID)
			return nil
		}
		return err
	}
	if d.Status != model.DistributionQueued {
		return nil
	}

	img, err := s.images.images.GetByID(ctx, d.ImageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	extID, perr := s.platforms.Publish(ctx, d.Platform, platform.Request{
		DistributionID: d.ID, ImageID: d.ImageID, ContentType: img.ContentType,
	})
	if perr != nil {
		msg := perr.Error()
		s.log.Info(ctx, "distribution failed", "distribution_id", d.ID, "platform", d.Platform, "error", perr)
		return s.dists.MarkResult(ctx, d.ID, model.DistributionFailed, nil, &msg, s.now())
	}
	s.log.Info(ctx, "distribution published", "distribution_id", d.ID, "platform", d.Platform, "external_id", extID)
	return s.dists.MarkResult(ctx, d.ID, model.DistributionPublished, &extID, nil, s.now())
}
