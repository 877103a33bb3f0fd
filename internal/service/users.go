// Package service holds the business rules behind the HTTP handlers. It
// speaks in model types and returns *apperr.Error for anything a client
// should see.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/repository"
)

// ErrEmailTaken is wrapped by the Conflict error returned when an email
// is already registered.
var ErrEmailTaken = errors.New("email taken")

const (
	maxNameLen   = 100
	maxAvatarLen = 2048
)

// UserStore is the persistence UserDirectory needs.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate, now time.Time) (model.User, error)
}

// SignupInput is a new password account.
type SignupInput struct {
	Email           string
	Password        string
	Name            string
	ExperienceLevel *model.ExperienceLevel
	ArchiveSize     *model.ArchiveSize
}

// UserDirectory owns user records.
type UserDirectory struct {
	users  UserStore
	hasher *auth.PasswordHasher
	now    func() time.Time
	newID  func() string
}

func NewUserDirectory(users UserStore, hasher *auth.PasswordHasher) *UserDirectory {
	return &UserDirectory{
		users:  users,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Create registers a password account. The email is normalized before
// the insert and uniqueness is left to the unique index.
func (d *UserDirectory) Create(ctx context.Context, in SignupInput) (model.PublicUser, error) {
	if len(in.Password) > auth.MaxPasswordBytes {
		return model.PublicUser{}, apperr.Validation("Validation failed", map[string]string{
			"password": fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes),
		})
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return model.PublicUser{}, apperr.Internal("hash password", err)
	}
	email := repository.NormalizeEmail(in.Email)
	now := d.now()
	u := model.User{
		ID:              d.newID(),
		Email:           email,
		PasswordHash:    &hash,
		Name:            displayName(in.Name, email),
		Plan:            model.PlanFree,
		ExperienceLevel: in.ExperienceLevel,
		ArchiveSize:     in.ArchiveSize,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return d.insert(ctx, u)
}

// CreateFromExternalIdentity registers an account for a verified Google
// identity. An existing account with the same email is never linked
// implicitly; the call fails with ErrEmailTaken instead.
func (d *UserDirectory) CreateFromExternalIdentity(ctx context.Context, id auth.ExternalIdentity) (model.PublicUser, error) {
	email := repository.NormalizeEmail(id.Email)
	if _, found, err := d.FindByEmail(ctx, email); err != nil {
		return model.PublicUser{}, err
	} else if found {
		return model.PublicUser{}, emailTaken()
	}

	sub := id.Subject
	now := d.now()
	u := model.User{
		ID:        d.newID(),
		Email:     email,
		Name:      displayName(id.Name, email),
		Plan:      model.PlanFree,
		GoogleSub: &sub,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if id.Avatar != "" {
		avatar := id.Avatar
		u.Avatar = &avatar
	}
	return d.insert(ctx, u)
}

func (d *UserDirectory) insert(ctx context.Context, u model.User) (model.PublicUser, error) {
	if err := u.CheckCredentials(); err != nil {
		return model.PublicUser{}, apperr.Internal("create user", err)
	}
	if err := d.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return model.PublicUser{}, emailTaken()
		case errors.Is(err, repository.ErrExternalIDExists):
			return model.PublicUser{}, apperr.Conflict("Account already linked")
		}
		return model.PublicUser{}, apperr.Internal("create user", err)
	}
	return u.Public(), nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (model.User, bool, error) {
	return d.find(d.users.GetByEmail(ctx, email))
}

func (d *UserDirectory) FindByID(ctx context.Context, id string) (model.User, bool, error) {
	return d.find(d.users.GetByID(ctx, id))
}

func (d *UserDirectory) FindByExternalID(ctx context.Context, sub string) (model.User, bool, error) {
	return d.find(d.users.GetByGoogleSub(ctx, sub))
}

func (d *UserDirectory) find(u model.User, err error) (model.User, bool, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, false, nil
		}
		return model.User{}, false, apperr.Internal("load user", err)
	}
	return u, true, nil
}

// Update applies the whitelisted profile fields and bumps updated_at.
func (d *UserDirectory) Update(ctx context.Context, id string, upd model.UserUpdate) (model.PublicUser, error) {
	if details := validateUpdate(&upd); len(details) > 0 {
		return model.PublicUser{}, apperr.Validation("Invalid profile update", details)
	}
	u, err := d.users.Update(ctx, id, upd, d.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, apperr.NotFound("User not found")
		}
		return model.PublicUser{}, apperr.Internal("update user", err)
	}
	return u.Public(), nil
}

// ToPublic is the only way a user leaves the service layer.
func (d *UserDirectory) ToPublic(u model.User) model.PublicUser { return u.Public() }

func validateUpdate(upd *model.UserUpdate) map[string]string {
	details := map[string]string{}
	if upd.Name.Set {
		upd.Name.Value = strings.TrimSpace(upd.Name.Value)
		switch {
		case upd.Name.Null || upd.Name.Value == "":
			details["name"] = "must not be empty"
		case utf8.RuneCountInString(upd.Name.Value) > maxNameLen:
			details["name"] = "must be at most 100 characters"
		}
	}
	if upd.Avatar.Set && !upd.Avatar.Null {
		upd.Avatar.Value = strings.TrimSpace(upd.Avatar.Value)
		if upd.Avatar.Value == "" {
			upd.Avatar = model.Null[string]()
		} else if len(upd.Avatar.Value) > maxAvatarLen {
			details["avatar"] = "must be at most 2048 bytes"
		}
	}
	if upd.Plan.Set && (upd.Plan.Null || !upd.Plan.Value.Valid()) {
		details["plan"] = "must be one of free, pro, enterprise"
	}
	if upd.ExperienceLevel.Set && !upd.ExperienceLevel.Null && !upd.ExperienceLevel.Value.Valid() {
		details["experienceLevel"] = "must be one of beginner, enthusiast, pro, agency"
	}
	if upd.ArchiveSize.Set && !upd.ArchiveSize.Null && !upd.ArchiveSize.Value.Valid() {
		details["archiveSize"] = "must be one of small, medium, large, massive"
	}
	return details
}

func displayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func emailTaken() error {
	return &apperr.Error{Kind: apperr.KindConflict, Message: "Email already registered", Err: ErrEmailTaken}
}
