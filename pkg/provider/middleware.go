package provider

import (
	"log/slog"
	"net/http"
	"time"
)

type loggingMiddleware struct {
	nextHandler http.Handler
	logger      *slog.Logger
}

func newLoggingMiddleware(next http.Handler, logger *slog.Logger) loggingMiddleware {
	return loggingMiddleware{
		nextHandler: next,
		logger:      logger,
	}
}

func (handler loggingMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler.nextHandler.ServeHTTP(rec, r)
	handler.logger.Debug("request served",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("duration", time.Since(start)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
