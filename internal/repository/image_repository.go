package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/photo-monetization/internal/database"
	"github.com/iliyamo/photo-monetization/internal/model"
)

const imageColumns = "id,user_id,storage_key,filename,content_type,size_bytes,created_at"

// ImageRepo persists image metadata and analysis payloads.
type ImageRepo struct{ DB database.DBTX }

func NewImageRepo(db database.DBTX) *ImageRepo { return &ImageRepo{DB: db} }

func (r *ImageRepo) Create(ctx context.Context, img model.Image) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO images ("+imageColumns+") VALUES (?,?,?,?,?,?,?)",
		img.ID, img.UserID, img.StorageKey, img.Filename, img.ContentType, img.SizeBytes, img.CreatedAt)
	if err != nil {
		if _, ok := duplicateKey(err); ok {
			return ErrConflict
		}
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetByID returns the image regardless of owner; ownership is the
// caller's decision so it can tell 403 from 404.
func (r *ImageRepo) GetByID(ctx context.Context, id string) (model.Image, error) {
	var img model.Image
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE id=? LIMIT 1", id).
		Scan(&img.ID, &img.UserID, &img.StorageKey, &img.Filename, &img.ContentType, &img.SizeBytes, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Image{}, ErrNotFound
		}
		return model.Image{}, fmt.Errorf("select image: %w", err)
	}
	return img, nil
}

// ListByUser returns the user's images, newest first.
func (r *ImageRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Image, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	defer rows.Close()

	images := make([]model.Image, 0)
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.UserID, &img.StorageKey, &img.Filename, &img.ContentType, &img.SizeBytes, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Delete removes the image row; analyses and distributions cascade.
func (r *ImageRepo) Delete(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM images WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysis stores the payload as-is, replacing any previous version.
func (r *ImageRepo) SaveAnalysis(ctx context.Context, a model.Analysis) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO image_analyses (image_id, schema_version, content_type, payload, updated_at)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE schema_version=VALUES(schema_version), content_type=VALUES(content_type),
		 payload=VALUES(payload), updated_at=VALUES(updated_at)`,
		a.ImageID, a.SchemaVersion, a.ContentType, a.Payload, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *ImageRepo) GetAnalysis(ctx context.Context, imageID string) (model.Analysis, error) {
	var a model.Analysis
	err := r.DB.QueryRowContext(ctx,
		"SELECT image_id, schema_version, content_type, payload, updated_at FROM image_analyses WHERE image_id=?",
		imageID).Scan(&a.ImageID, &a.SchemaVersion, &a.ContentType, &a.Payload, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Analysis{}, ErrNotFound
		}
		return model.Analysis{}, fmt.Errorf("select analysis: %w", err)
	}
	return a, nil
}
