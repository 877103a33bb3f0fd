package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/platform"
	"github.com/iliyamo/photo-monetization/internal/storetest"
)

type stubIdentity struct {
	id  auth.ExternalIdentity
	err error
}

func (s stubIdentity) Verify(context.Context, string) (auth.ExternalIdentity, error) {
	return s.id, s.err
}

var errBoom = errors.New("boom")

// env wires every service against in-memory stores.
type env struct {
	users   *storetest.Users
	tokens  *storetest.Tokens
	images  *storetest.Images
	objects *storetest.Objects
	dists   *storetest.Distributions
	events  *storetest.Events

	hasher   *auth.PasswordHasher
	tokenSvc *auth.TokenService
	dir      *UserDirectory
	auth     *AuthService
	imageSvc *ImageService
	distSvc  *DistributionService
}

func newEnv(t *testing.T, identity auth.IdentityVerifier) *env {
	t.Helper()
	e := &env{
		users:   storetest.NewUsers(),
		tokens:  storetest.NewTokens(),
		images:  storetest.NewImages(),
		objects: storetest.NewObjects(),
		dists:   storetest.NewDistributions(),
		events:  &storetest.Events{},
		hasher:  auth.NewPasswordHasher(bcrypt.MinCost),
	}
	if identity == nil {
		identity = stubIdentity{err: auth.ErrInvalidExternalToken}
	}
	log := logging.Discard()
	e.tokenSvc = auth.NewTokenService("0123456789abcdef0123456789abcdef", 15*time.Minute, 7*24*time.Hour, e.tokens)
	e.dir = NewUserDirectory(e.users, e.hasher)
	e.auth = NewAuthService(e.dir, e.hasher, e.tokenSvc, identity, log)
	e.imageSvc = NewImageService(e.images, e.objects, 1<<20, log)
	e.distSvc = NewDistributionService(e.imageSvc, e.dists, e.events, platform.DefaultCatalog(), log)
	return e
}
