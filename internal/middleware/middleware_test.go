package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloudvault/internal/redis"
	"cloudvault/internal/services"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLimiter struct {
	result *redis.RateLimitResult
	err    error
	calls  []string
}

func (s *stubLimiter) AllowKeyExchange(ctx context.Context, userID string) (*redis.RateLimitResult, error) {
	s.calls = append(s.calls, "exchange:"+userID)
	return s.result, s.err
}

func (s *stubLimiter) AllowRotation(ctx context.Context, userID string) (*redis.RateLimitResult, error) {
	s.calls = append(s.calls, "rotation:"+userID)
	return s.result, s.err
}

func whoAmI(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, userID.String())
}

func TestAuthMiddleware(t *testing.T) {
	auth := services.NewAuthService("secret", time.Minute)
	userID := uuid.New()
	token, err := auth.IssueAccessToken(userID)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(auth), whoAmI)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid bearer", "Bearer " + token, http.StatusOK, userID.String()},
		{"lowercase scheme", "bearer " + token, http.StatusOK, userID.String()},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRejectsOtherSecret(t *testing.T) {
	token, err := services.NewAuthService("other", time.Minute).IssueAccessToken(uuid.New())
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(services.NewAuthService("secret", time.Minute)), whoAmI)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func withUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithUserContext(c.Request.Context(), userID))
		c.Next()
	}
}

func TestKeyExchangeRateLimit(t *testing.T) {
	userID := uuid.New()

	t.Run("allowed sets headers", func(t *testing.T) {
		limiter := &stubLimiter{result: &redis.RateLimitResult{Allowed: true, Remaining: 29, Limit: 30, ResetIn: time.Minute}}
		r := gin.New()
		r.POST("/x", withUser(userID), KeyExchangeRateLimitMiddleware(limiter), whoAmI)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "60", w.Header().Get("X-RateLimit-Reset"))
		assert.Equal(t, []string{"exchange:" + userID.String()}, limiter.calls)
	})

	t.Run("denied", func(t *testing.T) {
		limiter := &stubLimiter{result: &redis.RateLimitResult{Allowed: false, Limit: 5, ResetIn: 10 * time.Second}}
		r := gin.New()
		r.POST("/x", withUser(userID), RotationRateLimitMiddleware(limiter), whoAmI)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
		assert.Equal(t, []string{"rotation:" + userID.String()}, limiter.calls)
	})

	t.Run("limiter error", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis down")}
		r := gin.New()
		r.POST("/x", withUser(userID), KeyExchangeRateLimitMiddleware(limiter), whoAmI)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		limiter := &stubLimiter{}
		r := gin.New()
		r.POST("/x", KeyExchangeRateLimitMiddleware(limiter), whoAmI)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, limiter.calls)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/id", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	generated := w.Header().Get("X-Request-Id")
	assert.Len(t, generated, 32)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-Id", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "abc", w.Body.String())
}

func TestErrorHandlerMapsKinds(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.NewNop()))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(cv_errors.Wrap(cv_errors.ErrForbidden, errors.New("not a participant")))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
}

func TestRequestIDMiddlewareReplacesUnusableIDs(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, bad := range []string{"has space", string(make([]byte, 65))} {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set("X-Request-Id", bad)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Len(t, w.Header().Get("X-Request-Id"), 32)
	}
}
