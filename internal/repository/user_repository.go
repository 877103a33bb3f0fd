package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/photo-monetization/internal/database"
	"github.com/iliyamo/photo-monetization/internal/model"
)

const userColumns = "id,email,password_hash,name,avatar,plan,experience_level,archive_size,google_sub,created_at,updated_at"

// UserRepo persists rows of the `users` table.
type UserRepo struct{ DB database.DBTX }

func NewUserRepo(db database.DBTX) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail is the single place emails are canonicalised.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u. Uniqueness is left to the database indexes, so two
// concurrent signups for one address yield exactly one ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	u.Email = NormalizeEmail(u.Email)
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.Email, u.PasswordHash, u.Name, u.Avatar, u.Plan,
		u.ExperienceLevel, u.ArchiveSize, u.GoogleSub, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if key, ok := duplicateKey(err); ok {
			switch key {
			case "uq_users_google_sub":
				return ErrExternalIDExists
			case "PRIMARY":
				return ErrConflict
			}
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByGoogleSub fetches the user linked to a Google subject id.
func (r *UserRepo) GetByGoogleSub(ctx context.Context, sub string) (model.User, error) {
	return r.getOne(ctx, "google_sub", sub)
}

func (r *UserRepo) getOne(ctx context.Context, column string, value any) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+column+"=? LIMIT 1", value)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return u, nil
}

// Update applies the whitelisted fields set in upd and always bumps
// updated_at. It returns the row as stored afterwards.
func (r *UserRepo) Update(ctx context.Context, id string, upd model.UserUpdate, now time.Time) (model.User, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	if upd.Name.Set {
		sets = append(sets, "name=?")
		args = append(args, upd.Name.Value)
	}
	if upd.Avatar.Set {
		sets = append(sets, "avatar=?")
		args = append(args, upd.Avatar.Ptr())
	}
	if upd.Plan.Set {
		sets = append(sets, "plan=?")
		args = append(args, upd.Plan.Value)
	}
	if upd.ExperienceLevel.Set {
		sets = append(sets, "experience_level=?")
		args = append(args, upd.ExperienceLevel.Ptr())
	}
	if upd.ArchiveSize.Set {
		sets = append(sets, "archive_size=?")
		args = append(args, upd.ArchiveSize.Ptr())
	}
	sets = append(sets, "updated_at=?")
	args = append(args, now, id)

	// MySQL reports changed rather than matched rows, so existence is
	// checked by the read-back instead of RowsAffected.
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                                      model.User
		pwd, avatar, level, archive, googleSub sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &pwd, &u.Name, &avatar, &u.Plan,
		&level, &archive, &googleSub, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.PasswordHash = nullString(pwd)
	u.Avatar = nullString(avatar)
	u.GoogleSub = nullString(googleSub)
	if level.Valid {
		v := model.ExperienceLevel(level.String)
		u.ExperienceLevel = &v
	}
	if archive.Valid {
		v := model.ArchiveSize(archive.String)
		u.ArchiveSize = &v
	}
	return u, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
