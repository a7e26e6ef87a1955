package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

// AuthValidator verifies bearer tokens and yields the caller's user id.
// The gateway only consumes this narrow surface; identity management
// lives elsewhere.
type AuthValidator interface {
	Verify(token string) (uuid.UUID, error)
}

// JWTValidator checks HS256 tokens whose sub claim carries the user UUID.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

func (v *JWTValidator) Verify(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("token has no subject")
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not a user id: %w", err)
	}
	return userID, nil
}

type AuthMiddleware struct {
	validator AuthValidator
	logger    *zap.Logger
}

func NewAuthMiddleware(validator AuthValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// Authenticate requires a valid bearer token and stores the user id in
// the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			m.sendUnauthorized(w, "missing bearer token")
			return
		}

		userID, err := m.validator.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			m.logger.Debug("auth failed", zap.Error(err))
			m.sendUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id placed by Authenticate.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return id, ok
}

func (m *AuthMiddleware) sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    "unauthorized",
		},
	})
}
