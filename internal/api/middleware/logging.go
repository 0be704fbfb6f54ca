package middleware

import (
	"net/http"
	"time"

	"github.com/dom/social-backend/internal/logger"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request. It must run after
// chi's RequestID middleware to pick up the id.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	base = logger.WithComponent(base, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.WithRequestID(base, chiMiddleware.GetReqID(r.Context())).Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
