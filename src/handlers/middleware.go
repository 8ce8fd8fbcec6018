package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/session"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// ContextualLoggerMiddleware attaches a logger carrying a requestID to
// each request's context.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUnlocked gates cached financial data behind the session state
// machine: only an Authenticated session may read or mutate records.
func RequireUnlocked(manager *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch state := manager.State(); state {
			case session.StateAuthenticated:
				next.ServeHTTP(w, r)
			case session.StateLocked, session.StatePinSetup:
				logger.FromContext(r.Context()).Debug("Request rejected: session locked", "state", state.String(), "path", r.URL.Path)
				sendJSONError(w, "session locked", http.StatusLocked)
			default:
				sendJSONError(w, "authentication required", http.StatusUnauthorized)
			}
		})
	}
}
