package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrInvalidExternalToken is returned for any identity token that fails
// verification, whatever the reason.
var ErrInvalidExternalToken = errors.New("invalid external identity token")

// ExternalIdentity is what a verified identity-provider token tells us.
type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
	Avatar  string
}

// IdentityVerifier checks a token issued by an external identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (ExternalIdentity, error)
}

// GoogleVerifier validates Google ID tokens against Google's public keys.
// A single attempt is made per call.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier returns a verifier expecting tokens minted for
// clientID. An empty clientID rejects every token.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{audience: clientID, validate: idtoken.Validate}
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (ExternalIdentity, error) {
	if g.audience == "" || token == "" {
		return ExternalIdentity{}, ErrInvalidExternalToken
	}
	p, err := g.validate(ctx, token, g.audience)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: %v", ErrInvalidExternalToken, err)
	}
	if p.Subject == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: missing subject", ErrInvalidExternalToken)
	}

	email := claimString(p.Claims, "email")
	if email == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: missing email", ErrInvalidExternalToken)
	}
	if v, ok := p.Claims["email_verified"].(bool); ok && !v {
		return ExternalIdentity{}, fmt.Errorf("%w: email not verified", ErrInvalidExternalToken)
	}

	return ExternalIdentity{
		Subject: p.Subject,
		Email:   email,
		Name:    claimString(p.Claims, "name"),
		Avatar:  claimString(p.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
