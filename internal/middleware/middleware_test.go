package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/config"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/model"
)

type stubVerifier struct {
	payload auth.Payload
	err     error
	gotKind auth.Kind
}

func (s *stubVerifier) VerifyKind(_ string, kind auth.Kind) (auth.Payload, error) {
	s.gotKind = kind
	return s.payload, s.err
}

type stubFinder struct {
	user  model.User
	found bool
	err   error
}

func (s stubFinder) FindByID(context.Context, string) (model.User, bool, error) {
	return s.user, s.found, s.err
}

func newContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func noContent(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

func TestSession(t *testing.T) {
	hash := "secret-hash"
	stored := model.User{ID: "u1", Email: "a@b.com", Plan: model.PlanPro, PasswordHash: &hash}

	t.Run("missing header", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/v1/me")
		err := Session(&stubVerifier{}, stubFinder{})(noContent)(c)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("invalid token", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/v1/me")
		c.Request().Header.Set(echo.HeaderAuthorization, "Bearer nope")
		err := Session(&stubVerifier{err: auth.ErrTokenInvalid}, stubFinder{})(noContent)(c)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("user deleted after issuance", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/v1/me")
		c.Request().Header.Set(echo.HeaderAuthorization, "Bearer tok")
		err := Session(&stubVerifier{payload: auth.Payload{UserID: "u1"}}, stubFinder{})(noContent)(c)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("storage failure", func(t *testing.T) {
		c, _ := newContext(http.MethodGet, "/v1/me")
		c.Request().Header.Set(echo.HeaderAuthorization, "Bearer tok")
		dbErr := apperr.Internal("load user", errors.New("conn refused"))
		err := Session(&stubVerifier{payload: auth.Payload{UserID: "u1"}}, stubFinder{err: dbErr})(noContent)(c)
		assert.True(t, apperr.Is(err, apperr.KindInternal))
	})

	t.Run("valid access token attaches public user", func(t *testing.T) {
		c, rec := newContext(http.MethodGet, "/v1/me")
		c.Request().Header.Set(echo.HeaderAuthorization, "bearer  tok ")
		v := &stubVerifier{payload: auth.Payload{UserID: "u1"}}

		var seen model.PublicUser
		err := Session(v, stubFinder{user: stored, found: true})(func(c echo.Context) error {
			seen, _ = CurrentUser(c)
			return noContent(c)
		})(c)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, auth.KindAccess, v.gotKind)
		assert.Equal(t, stored.Public(), seen)
	})
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"standard":     {"Bearer abc", "abc", true},
		"lower case":   {"bearer abc", "abc", true},
		"empty":        {"", "", false},
		"only scheme":  {"Bearer ", "", false},
		"blank token":  {"Bearer    ", "", false},
		"basic scheme": {"Basic abc", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := bearerToken(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequirePlan(t *testing.T) {
	gate := RequirePlan(model.PlanPro, model.PlanEnterprise)(noContent)

	c, _ := newContext(http.MethodPost, "/v1/images/x/distributions")
	assert.True(t, apperr.Is(gate(c), apperr.KindUnauthenticated))

	c, _ = newContext(http.MethodPost, "/v1/images/x/distributions")
	SetUser(c, model.PublicUser{ID: "u1", Plan: model.PlanFree})
	assert.True(t, apperr.Is(gate(c), apperr.KindForbidden))

	c, rec := newContext(http.MethodPost, "/v1/images/x/distributions")
	SetUser(c, model.PublicUser{ID: "u1", Plan: model.PlanEnterprise})
	require.NoError(t, gate(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNewTokenBucket_PassThroughWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	c, rec := newContext(http.MethodPost, "/v1/auth/login")
	for i := 0; i < 3; i++ {
		require.NoError(t, NewTokenBucket(cfg, nil, logging.Discard())(noContent)(c))
	}
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/v1/auth/login")
	c.SetPath("/v1/auth/login")
	c.Request().Header.Set(echo.HeaderXRealIP, "203.0.113.7")

	key := func(strategy string) string {
		return buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
	}
	assert.Equal(t, "rl:ip:203.0.113.7", key("ip"))
	assert.Equal(t, "rl:user:anon", key("user"))
	assert.Equal(t, "rl:ip:203.0.113.7:route:POST /v1/auth/login", key("IP_ROUTE"))

	SetUser(c, model.PublicUser{ID: "u9"})
	assert.Equal(t, "rl:ip:203.0.113.7:user:u9:route:POST /v1/auth/login", key(""))
}

func TestParseBucketResult(t *testing.T) {
	allowed, remaining, retry, ok := parseBucketResult([]interface{}{int64(1), int64(4), int64(0)})
	require.True(t, ok)
	assert.True(t, allowed)
	assert.EqualValues(t, 4, remaining)
	assert.EqualValues(t, 0, retry)

	allowed, _, retry, ok = parseBucketResult([]interface{}{"0", "0", "1500"})
	require.True(t, ok)
	assert.False(t, allowed)
	assert.EqualValues(t, 1500, retry)
	assert.Equal(t, 2, retryAfterSeconds(retry))

	_, _, _, ok = parseBucketResult("garbage")
	assert.False(t, ok)
}

func TestAsInt64(t *testing.T) {
	assert.EqualValues(t, 7, asInt64(int32(7)))
	assert.EqualValues(t, 7, asInt64(7.9))
	assert.EqualValues(t, 12, asInt64("12"))
	assert.EqualValues(t, 0, asInt64("x"))
	assert.EqualValues(t, 0, asInt64(nil))
}

func TestCacheKeyFrom(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

	c1, _ := newContext(http.MethodGet, "/v1/platforms?kind=stock")
	c1.SetPath("/v1/platforms")
	c2, _ := newContext(http.MethodGet, "/v1/platforms?kind=social")
	c2.SetPath("/v1/platforms")
	c3, _ := newContext(http.MethodGet, "/v1/platforms?kind=stock")
	c3.SetPath("/v1/platforms")

	k1 := cacheKeyFrom(cfg, c1)
	assert.True(t, strings.HasPrefix(k1, "cache:"))
	assert.NotEqual(t, k1, cacheKeyFrom(cfg, c2))
	assert.Equal(t, k1, cacheKeyFrom(cfg, c3))

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKeyFrom(cfg, c1), cacheKeyFrom(cfg, c2))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"success":true}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"success":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok, "header length past the end")
}

func TestCaptureWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}

	_, err := cw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hell", cw.buf.String())
	assert.Equal(t, "hello", rec.Body.String())
	assert.True(t, cw.truncated())

	cw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, cw.status)
}

func TestNewRedisCache_PassThroughWithoutRedis(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}
	c, rec := newContext(http.MethodGet, "/v1/platforms")
	require.NoError(t, NewRedisCache(cfg, nil, logging.Discard())(noContent)(c))
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
