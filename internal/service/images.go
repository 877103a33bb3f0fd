package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/repository"
)

// DownloadURLTTL is how long a presigned download link stays valid.
const DownloadURLTTL = 15 * time.Minute

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ImageStore is the image persistence used by ImageService.
type ImageStore interface {
	Create(ctx context.Context, img model.Image) error
	GetByID(ctx context.Context, id string) (model.Image, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Image, error)
	Delete(ctx context.Context, id, userID string) error
	SaveAnalysis(ctx context.Context, a model.Analysis) error
	GetAnalysis(ctx context.Context, imageID string) (model.Analysis, error)
}

// ObjectStore keeps the image bytes.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Upload is a single image file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageService manages images and their analysis results. Every method
// takes the caller's user id and enforces ownership.
type ImageService struct {
	images   ImageStore
	objects  ObjectStore
	log      logging.Logger
	maxBytes int64
	now      func() time.Time
	newID    func() string
}

func NewImageService(images ImageStore, objects ObjectStore, maxBytes int64, log logging.Logger) *ImageService {
	return &ImageService{
		images:   images,
		objects:  objects,
		log:      log,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Upload stores the bytes first and then the row; a failed insert removes
// the object again.
func (s *ImageService) Upload(ctx context.Context, userID string, up Upload) (model.Image, error) {
	details := map[string]string{}
	ct := strings.ToLower(strings.TrimSpace(up.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		details["file"] = "must be an image"
	}
	if up.Size <= 0 {
		details["file"] = "must not be empty"
	} else if s.maxBytes > 0 && up.Size > s.maxBytes {
		details["file"] = "is too large"
	}
	if len(details) > 0 {
		return model.Image{}, apperr.Validation("Invalid upload", details)
	}

	id := s.newID()
	img := model.Image{
		ID:          id,
		UserID:      userID,
		StorageKey:  "users/" + userID + "/" + id + extension(up.Filename),
		Filename:    cleanFilename(up.Filename),
		ContentType: ct,
		SizeBytes:   up.Size,
		CreatedAt:   s.now(),
	}
	if err := s.objects.Put(ctx, img.StorageKey, ct, up.Body, up.Size); err != nil {
		return model.Image{}, apperr.Internal("store image", err)
	}
	if err := s.images.Create(ctx, img); err != nil {
		if derr := s.objects.Delete(ctx, img.StorageKey); derr != nil {
			s.log.Warn(ctx, "orphaned object after failed insert", "key", img.StorageKey, "error", derr)
		}
		return model.Image{}, apperr.Internal("save image", err)
	}
	s.log.Info(ctx, "image uploaded", "user_id", userID, "image_id", id, "size", up.Size)
	return img, nil
}

func (s *ImageService) List(ctx context.Context, userID string, limit, offset int) ([]model.Image, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	imgs, err := s.images.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list images", err)
	}
	return imgs, nil
}

// Get returns the image if userID owns it: NotFound when it does not
// exist, Forbidden when it belongs to someone else.
func (s *ImageService) Get(ctx context.Context, userID, id string) (model.Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Image{}, apperr.NotFound("Image not found")
		}
		return model.Image{}, apperr.Internal("load image", err)
	}
	if img.UserID != userID {
		return model.Image{}, apperr.Forbidden("Image belongs to another user")
	}
	return img, nil
}

// DownloadURL returns a presigned GET URL and its expiry.
func (s *ImageService) DownloadURL(ctx context.Context, userID, id string) (string, time.Time, error) {
	img, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", time.Time{}, err
	}
	url, err := s.objects.PresignGet(ctx, img.StorageKey, DownloadURLTTL)
	if err != nil {
		return "", time.Time{}, apperr.Internal("presign download", err)
	}
	return url, s.now().Add(DownloadURLTTL), nil
}

// Delete removes the row, then the object. Analyses and distributions go
// with the row.
func (s *ImageService) Delete(ctx context.Context, userID, id string) error {
	img, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, img.ID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Image not found")
		}
		return apperr.Internal("delete image", err)
	}
	if err := s.objects.Delete(ctx, img.StorageKey); err != nil {
		s.log.Warn(ctx, "object delete failed", "key", img.StorageKey, "error", err)
	}
	return nil
}

func extension(filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
