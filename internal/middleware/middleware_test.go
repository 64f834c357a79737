package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squares-server/internal/common/response"
	"squares-server/internal/config"
)

func newCtx(headers map[string]string) (*beegocontext.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("POST", "/api/admin/game", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ctx := beegocontext.NewContext()
	ctx.Reset(rec, req)
	return ctx, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var out response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func useAdminToken(t *testing.T, token string) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.Admin.Enabled = token != ""
	cfg.Auth.Admin.Token = token
	prev := config.Get()
	config.Set(cfg)
	t.Cleanup(func() { config.Set(prev) })
}

func TestAdminAuthFilter(t *testing.T) {
	useAdminToken(t, "s3cret-token")

	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", "Bearer s3cret-token", true},
		{"missing", "", false},
		{"wrong scheme", "Basic s3cret-token", false},
		{"wrong token", "Bearer nope", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := map[string]string{}
			if tc.header != "" {
				h["Authorization"] = tc.header
			}
			ctx, rec := newCtx(h)
			AdminAuthFilter(ctx)
			if tc.ok {
				assert.Equal(t, true, ctx.Input.GetData("is_admin"))
				assert.Empty(t, rec.Body.Bytes())
				return
			}
			assert.Equal(t, 401, rec.Code)
			assert.Equal(t, response.CodeUnauthorized, decode(t, rec).Code)
		})
	}
}

func TestAdminAuthDisabled(t *testing.T) {
	useAdminToken(t, "")
	ctx, rec := newCtx(nil)
	AdminAuthFilter(ctx)
	assert.Empty(t, rec.Body.Bytes())
}

func TestUserIdentityFilter(t *testing.T) {
	ctx, rec := newCtx(map[string]string{"X-User-Id": "42"})
	UserIdentityFilter(ctx)
	assert.Equal(t, int64(42), ctx.Input.GetData("user_id"))
	assert.Empty(t, rec.Body.Bytes())

	for _, bad := range []string{"", "abc", "-3", "0"} {
		ctx, rec := newCtx(map[string]string{"X-User-Id": bad})
		UserIdentityFilter(ctx)
		assert.Nil(t, ctx.Input.GetData("user_id"), bad)
		assert.Equal(t, 401, rec.Code, bad)
	}
}

func TestRequestIDFilter(t *testing.T) {
	ctx, rec := newCtx(map[string]string{"X-Request-Id": "req-1"})
	RequestIDFilter(ctx)
	assert.Equal(t, "req-1", ctx.Input.GetData("trace_id"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	ctx, _ = newCtx(nil)
	RequestIDFilter(ctx)
	assert.Len(t, ctx.Input.GetData("trace_id"), 36)
}

func TestRateLimitSkipsWithoutRedis(t *testing.T) {
	cfg := &config.Config{}
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.ByUser.Requests = 1
	prev := config.Get()
	config.Set(cfg)
	t.Cleanup(func() { config.Set(prev) })

	ctx, rec := newCtx(nil)
	ctx.Input.SetData("user_id", int64(7))
	RateLimitFilter(ctx)
	RateLimitFilter(ctx)
	assert.Empty(t, rec.Body.Bytes())
}
