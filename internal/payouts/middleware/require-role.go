package middleware

import (
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"go-payouts/pkg/jwtfactory"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

// RequireRole lets a request through only if its verified token carries role.
// It must run after jwtauth.Verifier.
type RequireRole struct {
	role   string
	logger *logging.ZapLogger
}

func NewRequireRole(role string, logger *logging.ZapLogger) *RequireRole {
	return &RequireRole{
		role:   role,
		logger: logger,
	}
}

func (rr *RequireRole) CreateHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			rr.logger.DebugCtx(r.Context(), "no verified token", zap.Error(err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		role, _ := claims[jwtfactory.RoleClaimName].(string)
		if role != rr.role {
			rr.logger.InfoCtx(
				r.Context(),
				"role denied",
				zap.String("role", role),
				zap.String("required", rr.role),
				zap.Any("subject", claims[jwtfactory.SubjectClaimName]),
			)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
