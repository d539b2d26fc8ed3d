package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-satstore/internal/ratelimit"
)

func TestMiddlewareAllowsWithinLimit(t *testing.T) {
	h, err := ratelimit.New("3-M")
	require.NoError(t, err)

	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payments/btcpay", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		next.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestMiddlewareBlocksOverLimit(t *testing.T) {
	h, err := ratelimit.New("2-M")
	require.NoError(t, err)

	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payments/btcpay", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		next.ServeHTTP(last, req)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.NotEmpty(t, last.Header().Get("X-RateLimit-Limit"))
}

func TestMiddlewareKeysByClientIP(t *testing.T) {
	h, err := ratelimit.New("1-M")
	require.NoError(t, err)

	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/", nil)
	req1.RemoteAddr = "10.0.0.3:1234"
	next.ServeHTTP(first, req1)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/", nil)
	req2.RemoteAddr = "10.0.0.4:1234"
	next.ServeHTTP(second, req2)
	require.Equal(t, http.StatusOK, second.Code)
}

func TestInvalidRateExpression(t *testing.T) {
	_, err := ratelimit.New("not-a-rate")
	require.Error(t, err)
}
