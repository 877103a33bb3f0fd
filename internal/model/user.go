package model

import (
	"fmt"
	"time"
)

// PlanTier is the subscription tier of a user.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// ExperienceLevel describes how seasoned a photographer is.
type ExperienceLevel string

const (
	ExperienceBeginner   ExperienceLevel = "beginner"
	ExperienceEnthusiast ExperienceLevel = "enthusiast"
	ExperiencePro        ExperienceLevel = "pro"
	ExperienceAgency     ExperienceLevel = "agency"
)

// ArchiveSize is a coarse bucket for the size of a user's photo archive.
type ArchiveSize string

const (
	ArchiveSmall   ArchiveSize = "small"
	ArchiveMedium  ArchiveSize = "medium"
	ArchiveLarge   ArchiveSize = "large"
	ArchiveMassive ArchiveSize = "massive"
)

// Valid reports whether p is a known plan tier.
func (p PlanTier) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

func (e ExperienceLevel) Valid() bool {
	switch e {
	case ExperienceBeginner, ExperienceEnthusiast, ExperiencePro, ExperienceAgency:
		return true
	}
	return false
}

func (a ArchiveSize) Valid() bool {
	switch a {
	case ArchiveSmall, ArchiveMedium, ArchiveLarge, ArchiveMassive:
		return true
	}
	return false
}

// User mirrors a row of the `users` table. Nullable columns are pointers.
// A user always has PasswordHash, GoogleSub or both.
type User struct {
	ID              string
	Email           string
	PasswordHash    *string
	Name            string
	Avatar          *string
	Plan            PlanTier
	ExperienceLevel *ExperienceLevel
	ArchiveSize     *ArchiveSize
	GoogleSub       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

// HasExternalIdentity reports whether the user is linked to Google.
func (u User) HasExternalIdentity() bool { return u.GoogleSub != nil && *u.GoogleSub != "" }

// CheckCredentials enforces the "password, external identity or both" rule.
func (u User) CheckCredentials() error {
	if !u.HasPassword() && !u.HasExternalIdentity() {
		return fmt.Errorf("user %q has neither a password nor an external identity", u.Email)
	}
	return nil
}

// PublicUser is the only user representation that leaves the server.
// It never carries the password hash or the external identity id.
type PublicUser struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	Avatar          *string          `json:"avatar"`
	Plan            PlanTier         `json:"plan"`
	ExperienceLevel *ExperienceLevel `json:"experienceLevel"`
	ArchiveSize     *ArchiveSize     `json:"archiveSize"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Public returns the redacted view of u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Avatar:          u.Avatar,
		Plan:            u.Plan,
		ExperienceLevel: u.ExperienceLevel,
		ArchiveSize:     u.ArchiveSize,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// UserUpdate lists the profile fields a user may change. Fields left unset
// are untouched; nullable fields may be explicitly cleared with null.
type UserUpdate struct {
	Name            Optional[string]          `json:"name"`
	Avatar          Optional[string]          `json:"avatar"`
	Plan            Optional[PlanTier]        `json:"plan"`
	ExperienceLevel Optional[ExperienceLevel] `json:"experienceLevel"`
	ArchiveSize     Optional[ArchiveSize]     `json:"archiveSize"`
}

// Empty reports whether no field is set.
func (u UserUpdate) Empty() bool {
	return !u.Name.Set && !u.Avatar.Set && !u.Plan.Set && !u.ExperienceLevel.Set && !u.ArchiveSize.Set
}

// RefreshToken models a row of `refresh_tokens`. Only the SHA-256 hash of
// the token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
