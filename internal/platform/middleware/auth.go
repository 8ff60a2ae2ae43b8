package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator: the
// acting user and the single authoritative role for the request.
type JWTClaims struct {
	ActorID   string
	Role      string
	SessionID string
}

// Context keys for storing authenticated actor information.
type contextKeyActorID struct{}
type contextKeyRole struct{}
type contextKeySessionID struct{}

var (
	ctxKeyActorID   = contextKeyActorID{}
	ctxKeyRole      = contextKeyRole{}
	ctxKeySessionID = contextKeySessionID{}
)

// GetActorID retrieves the authenticated actor id from the context.
func GetActorID(ctx context.Context) string {
	actorID, ok := ctx.Value(ctxKeyActorID).(string)
	if !ok {
		return ""
	}
	return actorID
}

// GetRole retrieves the actor's role from the context.
func GetRole(ctx context.Context) string {
	role, ok := ctx.Value(ctxKeyRole).(string)
	if !ok {
		return ""
	}
	return role
}

// GetSessionID retrieves the session id from the context.
func GetSessionID(ctx context.Context) string {
	sessionID, ok := ctx.Value(ctxKeySessionID).(string)
	if !ok {
		return ""
	}
	return sessionID
}

// RequireAuth validates the bearer token and stores actor identity in the
// request context. Requests without a valid token never reach the handler.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ctxKeyActorID, claims.ActorID)
			ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)
			ctx = context.WithValue(ctx, ctxKeySessionID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
