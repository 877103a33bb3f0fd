package service

import (
	"context"
	"errors"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/model"
)

// msgInvalidCredentials is shared by every login failure so responses do
// not reveal whether an email is registered.
const msgInvalidCredentials = "Invalid email or password"

// Session is the outcome of a successful authentication.
type Session struct {
	User         model.PublicUser
	AccessToken  auth.IssuedToken
	RefreshToken auth.IssuedToken
}

// AuthService runs signup, login, Google sign-in, refresh and logout.
type AuthService struct {
	users    *UserDirectory
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenService
	identity auth.IdentityVerifier
	log      logging.Logger
}

func NewAuthService(users *UserDirectory, hasher *auth.PasswordHasher, tokens *auth.TokenService,
	identity auth.IdentityVerifier, log logging.Logger) *AuthService {
	return &AuthService{users: users, hasher: hasher, tokens: tokens, identity: identity, log: log}
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (Session, error) {
	u, err := s.users.Create(ctx, in)
	if err != nil {
		return Session{}, err
	}
	s.log.Info(ctx, "user signed up", "user_id", u.ID)
	return s.issue(ctx, u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, found, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if !found || !u.HasPassword() {
		s.hasher.Burn(password)
		return Session{}, apperr.Unauthenticated(msgInvalidCredentials)
	}
	if !s.hasher.Verify(password, *u.PasswordHash) {
		return Session{}, apperr.Unauthenticated(msgInvalidCredentials)
	}
	return s.issue(ctx, u.Public())
}

// Google signs in with a Google ID token, creating the account on first
// use. An email already held by an unlinked account is a conflict.
func (s *AuthService) Google(ctx context.Context, idToken string) (Session, error) {
	id, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		s.log.Debug(ctx, "google token rejected", "error", err)
		return Session{}, apperr.Unauthenticated("Invalid Google token")
	}

	u, found, err := s.users.FindByExternalID(ctx, id.Subject)
	if err != nil {
		return Session{}, err
	}
	if found {
		return s.issue(ctx, u.Public())
	}

	pub, err := s.users.CreateFromExternalIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Session{}, &apperr.Error{
				Kind:    apperr.KindConflict,
				Message: "Email already registered with another sign-in method",
				Err:     err,
			}
		}
		return Session{}, err
	}
	s.log.Info(ctx, "user signed up with google", "user_id", pub.ID)
	return s.issue(ctx, pub)
}

// Refresh exchanges a live refresh token for a new token pair. The
// redeemed token stays live until it expires or is pruned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, apperr.Unauthenticated("Missing refresh token")
	}
	p, err := s.tokens.VerifyKind(refreshToken, auth.KindRefresh)
	if err != nil {
		return Session{}, apperr.Unauthenticated("Invalid refresh token")
	}
	live, err := s.tokens.IsRefreshTokenLive(ctx, p.UserID, refreshToken)
	if err != nil {
		return Session{}, apperr.Internal("check refresh token", err)
	}
	if !live {
		return Session{}, apperr.Unauthenticated("Invalid refresh token")
	}

	u, found, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, apperr.Unauthenticated("Invalid refresh token")
	}
	return s.issue(ctx, u.Public())
}

// Logout revokes every refresh token of userID.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return apperr.Internal("revoke refresh tokens", err)
	}
	s.log.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

func (s *AuthService) issue(ctx context.Context, u model.PublicUser) (Session, error) {
	access, err := s.tokens.IssueAccessToken(u.ID, u.Email)
	if err != nil {
		return Session{}, apperr.Internal("issue access token", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID, u.Email)
	if err != nil {
		return Session{}, apperr.Internal("issue refresh token", err)
	}
	if err := s.tokens.PersistRefreshToken(ctx, u.ID, refresh); err != nil {
		return Session{}, apperr.Internal("persist refresh token", err)
	}
	return Session{User: u, AccessToken: access, RefreshToken: refresh}, nil
}
