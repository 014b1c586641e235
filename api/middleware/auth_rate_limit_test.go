package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentialRequest(path, ip, email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"`+email+`","password":"Secret123!"}`))
	req.RemoteAddr = ip + ":5678"
	return req
}

func TestAuthRateLimitPreservesBody(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	throttle := AuthThrottle{Endpoint: "login", Window: time.Minute, PerIP: 2, PerEmail: 2}

	var seen string
	handler := AuthRateLimit(throttle, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "1.2.3.4", "Shopper@Example.com"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, seen, `"email":"Shopper@Example.com"`)
}

func TestAuthRateLimitPerEmailIgnoresCase(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	throttle := AuthThrottle{Endpoint: "login", Window: time.Minute, PerEmail: 2}
	handler := AuthRateLimit(throttle, limiter, nil)(okHandler())

	emails := []string{"blocked@example.com", "BLOCKED@example.com", " blocked@example.com"}
	for i, email := range emails {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "10.0.0."+string(rune('1'+i)), email))
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	}
}

func TestAuthRateLimitPerIP(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	throttle := AuthThrottle{Endpoint: "register", Window: time.Minute, PerIP: 1}
	handler := AuthRateLimit(throttle, limiter, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/register", "5.6.7.8", "a@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/register", "5.6.7.8", "b@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/register", "5.6.7.9", "c@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}, err: errors.New("redis down")}
	throttle := AuthThrottle{Endpoint: "login", Window: time.Minute, PerIP: 1, PerEmail: 1}
	handler := AuthRateLimit(throttle, limiter, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "1.1.1.1", "x@example.com"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
