package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	apphttp "github.com/james-langridge/mars-vista-api-sub000/pkg/app/http"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/auth"
)

// Response headers set on every limited request.
const (
	HeaderLimitHour     = "X-RateLimit-Limit-Hour"
	HeaderRemainingHour = "X-RateLimit-Remaining-Hour"
	HeaderResetHour     = "X-RateLimit-Reset-Hour"
	HeaderLimitDay      = "X-RateLimit-Limit-Day"
	HeaderRemainingDay  = "X-RateLimit-Remaining-Day"
	HeaderResetDay      = "X-RateLimit-Reset-Day"
	HeaderTier          = "X-RateLimit-Tier"

	unlimitedValue = "unlimited"
)

// QuotaExceededError describes a rejected request. It renders the limit and reset
// fields of the 429 body.
type QuotaExceededError struct {
	Kind    WindowKind
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded until %s", e.Kind, e.ResetAt.Format(time.RFC3339))
}

// Details implements apphttp.Detailer.
func (e *QuotaExceededError) Details() map[string]any {
	return map[string]any{"limit": string(e.Kind), "reset_at": e.ResetAt}
}

// Middleware consults the limiter for the authenticated principal. It must run after auth.Middleware.
func Middleware(limiter *Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing credential"))
				return
			}

			d, err := limiter.CheckAndConsume(r.Context(), p.Identity, p.Tier)
			if err != nil {
				logger.Error("Rate limit check failed", zap.String("identity", p.Identity), zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.GeneralError(err))
				return
			}

			setHeaders(w.Header(), d)
			if !d.Allowed {
				win := d.ExceededWindow()
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter(win.ResetAt, limiter.now()), 10))
				apphttp.DefaultErrorHandler(w, apperrors.TooManyRequestsError(
					&QuotaExceededError{Kind: d.Exceeded, ResetAt: win.ResetAt},
					rejectionMessage(d.Exceeded)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(h http.Header, d *Decision) {
	h.Set(HeaderTier, d.Tier)
	h.Set(HeaderLimitHour, quota(d.Hour.Limit))
	h.Set(HeaderRemainingHour, quota(d.Hour.Remaining))
	h.Set(HeaderResetHour, strconv.FormatInt(d.Hour.ResetAt.Unix(), 10))
	h.Set(HeaderLimitDay, quota(d.Day.Limit))
	h.Set(HeaderRemainingDay, quota(d.Day.Remaining))
	h.Set(HeaderResetDay, strconv.FormatInt(d.Day.ResetAt.Unix(), 10))
}

func quota(n int) string {
	if n == Unlimited {
		return unlimitedValue
	}
	return strconv.Itoa(n)
}

func retryAfter(resetAt, now time.Time) int64 {
	secs := int64(resetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

func rejectionMessage(kind WindowKind) string {
	if kind == WindowDay {
		return "daily rate limit exceeded"
	}
	return "hourly rate limit exceeded"
}
