package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, mw := range middleware {
		r.Use(mw)
	}
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuthMiddleware_ExemptsHealth(t *testing.T) {
	r := newTestRouter(authMiddleware("secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingHeaderIs401(t *testing.T) {
	r := newTestRouter(authMiddleware("secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongTokenIs403(t *testing.T) {
	r := newTestRouter(authMiddleware("secret"))
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddleware_CorrectTokenPasses(t *testing.T) {
	r := newTestRouter(authMiddleware("secret"))
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_UnconfiguredTokenIs500(t *testing.T) {
	r := newTestRouter(authMiddleware(""))
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDMiddleware_GeneratesIDWhenAbsent(t *testing.T) {
	r := newTestRouter(requestIDMiddleware(zerolog.Nop()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestIDMiddleware_HonorsCallerSuppliedID(t *testing.T) {
	r := newTestRouter(requestIDMiddleware(zerolog.Nop()))
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-Id", "caller-id-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "caller-id-123", w.Header().Get("X-Request-Id"))
}

func TestRateLimitMiddleware_DisabledAtZero(t *testing.T) {
	r := newTestRouter(rateLimitMiddleware(0))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddleware_BlocksOverCapacity(t *testing.T) {
	r := newTestRouter(rateLimitMiddleware(1))
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
}
