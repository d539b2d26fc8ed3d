// Package ratelimit guards the invoice endpoint against bursts from a single
// client. The store is in-memory; a multi-instance deployment would swap in a
// shared store behind the same limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-satstore/internal/common"
)

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	OnError func(error)
}

// New builds a memory-backed limiter from a rate expression such as "30-M".
func New(rate string) (*Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return &Handler{Limiter: limiter.New(memory.NewStore(), parsed)}, nil
}

// Middleware implements the http.Handler middleware interface, keyed by
// client IP.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h == nil || h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := h.Limiter.Get(r.Context(), common.ClientIP(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(ctx.Reset, 10))

		if ctx.Reached {
			if wait := ctx.Reset - time.Now().Unix(); wait > 0 {
				headers.Set("Retry-After", strconv.FormatInt(wait, 10))
			}
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
