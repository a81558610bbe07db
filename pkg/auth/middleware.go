package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	apphttp "github.com/james-langridge/mars-vista-api-sub000/pkg/app/http"
)

// Middleware resolves the bearer token into a Principal or answers 401.
func Middleware(tokens *Tokens, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}

			p, err := tokens.Validate(raw)
			if err != nil {
				logger.Debug("Rejected credential", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid credential"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin answers 403 to principals without the admin claim. It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing credential"))
			return
		}
		if !p.Admin {
			apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(nil, "admin credential required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
