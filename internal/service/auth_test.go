package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/auth"
)

func TestAuth_SignupThenCaseInsensitiveDuplicate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	s, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", s.User.Email)
	assert.Equal(t, "a", s.User.Name)
	assert.NotEmpty(t, s.AccessToken.Token)
	assert.NotEmpty(t, s.RefreshToken.Token)

	u, found, err := e.dir.FindByEmail(ctx, "A@B.COM")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.User.ID, u.ID)

	_, err = e.auth.Signup(ctx, SignupInput{Email: "A@B.com", Password: "x"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 1, e.users.Count())
}

func TestAuth_ConcurrentSignupYieldsOneAccount(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, taken int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.auth.Signup(ctx, SignupInput{Email: "race@b.com", Password: "secret1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.KindConflict) {
				taken++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)
	assert.Equal(t, 1, e.users.Count())
}

func TestAuth_LoginFailuresLookIdentical(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	_, wrongPw := e.auth.Login(ctx, "a@b.com", "wrong")
	_, unknown := e.auth.Login(ctx, "nobody@b.com", "wrong")

	for _, err := range []error{wrongPw, unknown} {
		require.Error(t, err)
		var ae *apperr.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, apperr.KindUnauthenticated, ae.Kind)
		assert.Equal(t, msgInvalidCredentials, ae.Message)
	}

	s, err := e.auth.Login(ctx, " A@b.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", s.User.Email)
}

func TestAuth_LoginRejectsGoogleOnlyAccount(t *testing.T) {
	e := newEnv(t, stubIdentity{id: auth.ExternalIdentity{Subject: "g1", Email: "c@d.com", Name: "C"}})
	ctx := context.Background()

	_, err := e.auth.Google(ctx, "token")
	require.NoError(t, err)

	_, err = e.auth.Login(ctx, "c@d.com", "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestAuth_RefreshScenario(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.auth.Refresh(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	s, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	next, err := e.auth.Refresh(ctx, s.RefreshToken.Token)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken.Token, next.RefreshToken.Token)
	assert.Equal(t, s.User.ID, next.User.ID)

	// the redeemed token stays usable until pruned or expired
	_, err = e.auth.Refresh(ctx, s.RefreshToken.Token)
	require.NoError(t, err)

	_, err = e.auth.Refresh(ctx, s.AccessToken.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated), "access token must not refresh")

	require.NoError(t, e.auth.Logout(ctx, s.User.ID))
	_, err = e.auth.Refresh(ctx, s.RefreshToken.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	_, err = e.auth.Refresh(ctx, next.RefreshToken.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestAuth_RefreshForDeletedUser(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	s, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	delete(e.users.Rows, s.User.ID)

	_, err = e.auth.Refresh(ctx, s.RefreshToken.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestAuth_GoogleFirstLoginThenReturning(t *testing.T) {
	id := auth.ExternalIdentity{Subject: "g1", Email: "C@d.com", Name: "C", Avatar: "https://lh3/c.png"}
	e := newEnv(t, stubIdentity{id: id})
	ctx := context.Background()

	first, err := e.auth.Google(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", first.User.Email)
	require.NotNil(t, first.User.Avatar)

	again, err := e.auth.Google(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
	assert.Equal(t, 1, e.users.Count())

	// a later password signup for the same email is not linked silently
	_, err = e.auth.Signup(ctx, SignupInput{Email: "c@d.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuth_GoogleEmailOwnedByPasswordAccount(t *testing.T) {
	e := newEnv(t, stubIdentity{id: auth.ExternalIdentity{Subject: "g2", Email: "a@b.com"}})
	ctx := context.Background()

	_, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = e.auth.Google(ctx, "token")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 1, e.users.Count())
}

func TestAuth_GoogleInvalidToken(t *testing.T) {
	e := newEnv(t, stubIdentity{err: auth.ErrInvalidExternalToken})
	_, err := e.auth.Google(context.Background(), "bad")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.Equal(t, 0, e.users.Count())
}

func TestAuth_SessionsCapAtFive(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	first, err := e.auth.Signup(ctx, SignupInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := e.auth.Login(ctx, "a@b.com", "secret1")
		require.NoError(t, err)
	}

	assert.Len(t, e.tokens.Rows[first.User.ID], auth.MaxLiveRefreshTokens)
	_, err = e.auth.Refresh(ctx, first.RefreshToken.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated), "oldest session should have been pruned")
}
