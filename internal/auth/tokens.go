// Package auth issues and verifies credentials: bcrypt password hashes,
// HS256 access/refresh tokens and Google identity tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxLiveRefreshTokens caps the stored refresh tokens per user.
const MaxLiveRefreshTokens = 5

const issuer = "photo-monetization"

// ErrTokenInvalid covers bad signatures, expiry, malformed tokens and a
// kind mismatch.
var ErrTokenInvalid = errors.New("token invalid")

// Kind separates access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Payload is the verified content of a token.
type Payload struct {
	UserID    string
	Email     string
	Kind      Kind
	ID        string
	ExpiresAt time.Time
}

// IssuedToken is a signed token and its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Kind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// RefreshStore is the persistence the token service needs for refresh
// token liveness. repository.TokenRepo implements it.
type RefreshStore interface {
	Store(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time, max int) error
	LiveHashes(ctx context.Context, userID string, now time.Time) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) error
}

// TokenService signs, verifies and tracks tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshStore
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, store RefreshStore) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RefreshTTL is the lifetime of refresh tokens, also used as cookie max-age.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(userID, email string) (IssuedToken, error) {
	return s.issue(userID, email, KindAccess, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(userID, email string) (IssuedToken, error) {
	return s.issue(userID, email, KindRefresh, s.refreshTTL)
}

func (s *TokenService) issue(userID, email string, kind Kind, ttl time.Duration) (IssuedToken, error) {
	now := s.now()
	exp := now.Add(ttl)
	c := claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return IssuedToken{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify checks signature, issuer and expiry without touching storage.
func (s *TokenService) Verify(token string) (Payload, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if c.UserID == "" || (c.Kind != KindAccess && c.Kind != KindRefresh) {
		return Payload{}, ErrTokenInvalid
	}
	return Payload{
		UserID:    c.UserID,
		Email:     c.Email,
		Kind:      c.Kind,
		ID:        c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// VerifyKind is Verify plus a check that the token is of the given kind.
func (s *TokenService) VerifyKind(token string, kind Kind) (Payload, error) {
	p, err := s.Verify(token)
	if err != nil {
		return Payload{}, err
	}
	if p.Kind != kind {
		return Payload{}, fmt.Errorf("%w: expected %s token, got %s", ErrTokenInvalid, kind, p.Kind)
	}
	return p, nil
}

// PersistRefreshToken stores the hash of token for userID, pruning the
// oldest records so at most MaxLiveRefreshTokens remain.
func (s *TokenService) PersistRefreshToken(ctx context.Context, userID string, token IssuedToken) error {
	return s.store.Store(ctx, userID, hashToken(token.Token), token.ExpiresAt, s.now(), MaxLiveRefreshTokens)
}

// IsRefreshTokenLive reports whether token's hash is among the user's
// unexpired records. Every stored hash is compared.
func (s *TokenService) IsRefreshTokenLive(ctx context.Context, userID, token string) (bool, error) {
	hashes, err := s.store.LiveHashes(ctx, userID, s.now())
	if err != nil {
		return false, err
	}
	want := []byte(hashToken(token))
	live := 0
	for _, h := range hashes {
		live |= subtle.ConstantTimeCompare([]byte(h), want)
	}
	return live == 1, nil
}

// RevokeAllRefreshTokens drops every stored refresh token of userID.
func (s *TokenService) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	return s.store.DeleteAllForUser(ctx, userID)
}

// hashToken returns the hex SHA-256 of a raw token. Only this value is
// ever stored.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
