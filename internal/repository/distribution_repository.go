package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/photo-monetization/internal/database"
	"github.com/iliyamo/photo-monetization/internal/model"
)

const distributionColumns = "id,image_id,user_id,platform,status,external_id,last_error,created_at,updated_at"

// DistributionRepo tracks publish requests to third-party platforms.
type DistributionRepo struct{ DB database.DBTX }

func NewDistributionRepo(db database.DBTX) *DistributionRepo { return &DistributionRepo{DB: db} }

func (r *DistributionRepo) Create(ctx context.Context, d model.Distribution) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO distributions ("+distributionColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		d.ID, d.ImageID, d.UserID, d.Platform, d.Status, d.ExternalID, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

func (r *DistributionRepo) GetByID(ctx context.Context, id string) (model.Distribution, error) {
	d, err := scanDistribution(r.DB.QueryRowContext(ctx,
		"SELECT "+distributionColumns+" FROM distributions WHERE id=? LIMIT 1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Distribution{}, ErrNotFound
		}
		return model.Distribution{}, fmt.Errorf("select distribution: %w", err)
	}
	return d, nil
}

func (r *DistributionRepo) ListByImage(ctx context.Context, imageID string) ([]model.Distribution, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+distributionColumns+" FROM distributions WHERE image_id=? ORDER BY created_at DESC", imageID)
	if err != nil {
		return nil, fmt.Errorf("select distributions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Distribution, 0)
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkResult records the outcome reported by the platform stub.
func (r *DistributionRepo) MarkResult(ctx context.Context, id string, status model.DistributionStatus, externalID, lastError *string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE distributions SET status=?, external_id=?, last_error=?, updated_at=? WHERE id=?",
		status, externalID, lastError, now, id)
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDistribution(row rowScanner) (model.Distribution, error) {
	var (
		d              model.Distribution
		extID, lastErr sql.NullString
	)
	if err := row.Scan(&d.ID, &d.ImageID, &d.UserID, &d.Platform, &d.Status,
		&extID, &lastErr, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return model.Distribution{}, err
	}
	d.ExternalID = nullString(extID)
	d.LastError = nullString(lastErr)
	return d, nil
}
