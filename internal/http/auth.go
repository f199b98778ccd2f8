package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// userIDFrom returns the authenticated user ID set by withUser.
func userIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// withBatchToken guards the calculation trigger with the shared batch
// token. Comparison is constant-time.
func (s *Server) withBatchToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.RankingToken)) != 1 {
			slog.WarnContext(r.Context(), "Rejected batch trigger", "client_ip", clientIP(r))
			errorJSON(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

// withUser authenticates the request via a JWT bearer token and stores
// the user ID from the sub claim in the request context.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errorJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.parseUserToken(token)
		if err != nil {
			slog.WarnContext(r.Context(), "Rejected user token", "error", err, "client_ip", clientIP(r))
			errorJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// parseUserToken validates an HS256 JWT and returns the user ID carried
// in the sub claim.
func (s *Server) parseUserToken(token string) (int64, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("read sub claim: %w", err)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sub claim is not a user ID: %w", err)
	}
	if userID <= 0 {
		return 0, fmt.Errorf("sub claim is not a valid user ID")
	}
	return userID, nil
}
