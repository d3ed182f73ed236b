package echoapi

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/studyrelay/core/reqauth"
)

const (
	rawBodyKey = "rawBody"

	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
	limiterMaxVisitors   = 10000
)

var errTooManyRequests = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")

type (
	visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	// ipRateLimiter keeps one token bucket per client IP. Idle buckets are swept at most once per
	// limiterSweepInterval; while the table is full, unknown IPs are refused.
	ipRateLimiter struct {
		mu          sync.Mutex
		visitors    map[string]*visitor
		limit       rate.Limit
		burst       int
		maxVisitors int
		lastSweep   time.Time
		now         func() time.Time
	}
)

func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       limit,
		burst:       burst,
		maxVisitors: limiterMaxVisitors,
		now:         time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		l.sweep(now)
	}
	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= l.maxVisitors {
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *ipRateLimiter) sweep(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.visitors, k)
		}
	}
	l.lastSweep = now
}

// rateLimitMiddleware throttles each client IP, as resolved by the server's IPExtractor.
// A zero limit disables it.
func rateLimitMiddleware(limit rate.Limit, burst int) echo.MiddlewareFunc {
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	limiter := newIPRateLimiter(limit, burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !limiter.allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// rawBodyMiddleware reads the whole body once, up to limit bytes, and keeps the exact bytes in the
// context. The request body is replaced so that handlers can still bind it.
func rawBodyMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.ContentLength > limit {
				return echo.ErrStatusRequestEntityTooLarge
			}
			body, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
			if err != nil {
				return errors.Wrap(err, "reading request body")
			}
			if int64(len(body)) > limit {
				return echo.ErrStatusRequestEntityTooLarge
			}
			_ = req.Body.Close()
			req.Body = io.NopCloser(bytes.NewReader(body))
			ctx.Set(rawBodyKey, body)
			return next(ctx)
		}
	}
}

func rawBody(ctx echo.Context) []byte {
	body, _ := ctx.Get(rawBodyKey).([]byte)
	return body
}

// signedRequestMiddleware rejects any request that does not carry a valid signature over its raw body.
func signedRequestMiddleware(auth *reqauth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if err := auth.Authenticate(req.Context(), reqauth.RequestFromHTTP(req, rawBody(ctx))); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
