package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

type LoggerContext struct{}

func NewLoggerContext() *LoggerContext {
	return &LoggerContext{}
}

func (lc *LoggerContext) CreateHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := []zap.Field{
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("remote-addr", r.RemoteAddr),
		}
		if requestID := chimiddleware.GetReqID(r.Context()); requestID != "" {
			fields = append(fields, zap.String("request-id", requestID))
		}
		r = r.WithContext(logging.WithContextFields(r.Context(), fields...))
		next.ServeHTTP(w, r)
	})
}
