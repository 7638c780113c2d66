package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"faceattend/internal/auth"
)

func TestTokenBucketRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
}

func TestGinMiddlewareKeysByDevice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSimpleTokenBucket(1, 1)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if dev := c.GetHeader("X-Test-Device"); dev != "" {
			c.Set(auth.ClaimsKey, auth.Claims{
				Role:             auth.RoleKiosk,
				RegisteredClaims: jwt.RegisteredClaims{Subject: dev},
			})
		}
		c.Next()
	}, l.GinMiddleware(), SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(device string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if device != "" {
			req.Header.Set("X-Test-Device", device)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "nosniff", first.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, http.StatusTooManyRequests, do("").Code)

	// same IP, different devices get their own buckets
	assert.Equal(t, http.StatusNoContent, do("kiosk-1").Code)
	assert.Equal(t, http.StatusNoContent, do("kiosk-2").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("kiosk-1").Code)
}
