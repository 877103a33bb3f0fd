package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/photo-monetization/internal/database"
)

// TokenRepo persists refresh token hashes. It needs the *sql.DB itself
// because Store runs in its own transaction.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a refresh token hash for userID, keeping at most max live
// rows for that user. Within one transaction it locks the user row,
// removes expired rows, trims the rest to the max-1 most recent and
// inserts the new one. The user-row lock serialises concurrent logins so
// the cap holds exactly.
func (r *TokenRepo) Store(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time, max int) error {
	if max < 1 {
		return fmt.Errorf("refresh token cap must be positive, got %d", max)
	}
	return database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		var locked string
		err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id=? FOR UPDATE", userID).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM refresh_tokens WHERE user_id=? AND expires_at<=?", userID, now); err != nil {
			return fmt.Errorf("delete expired refresh tokens: %w", err)
		}

		stale, err := staleTokenIDs(ctx, tx, userID, max-1)
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(stale)), ",")
			args := make([]any, len(stale))
			for i, id := range stale {
				args[i] = id
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM refresh_tokens WHERE id IN ("+placeholders+")", args...); err != nil {
				return fmt.Errorf("prune refresh tokens: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
			userID, tokenHash, expiresAt, now); err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}
		return nil
	})
}

// staleTokenIDs returns the ids of every row after the keep most recent.
func staleTokenIDs(ctx context.Context, tx database.DBTX, userID string, keep int) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM refresh_tokens WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	var stale []uint64
	for i := 0; rows.Next(); i++ {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan refresh token id: %w", err)
		}
		if i >= keep {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return stale, nil
}

// LiveHashes returns the hashes of every non-expired token of userID.
func (r *TokenRepo) LiveHashes(ctx context.Context, userID string, now time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT token_hash FROM refresh_tokens WHERE user_id=? AND expires_at>?", userID, now)
	if err != nil {
		return nil, fmt.Errorf("select refresh tokens: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteAllForUser removes every refresh token of userID.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID); err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	return nil
}
