// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"heartline/internal/config"
	"heartline/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims for our application
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies identity tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	logger *slog.Logger
}

func NewAuthenticator(cfg *config.AuthConfig, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		logger: logger,
	}
}

// GenerateToken creates a new JWT token for the given user ID
func (a *Authenticator) GenerateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates the provided JWT token and returns the user it names.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid token", errors.New("invalid claims"))
	}
	if claims.UserID == uuid.Nil {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid token", errors.New("missing user id"))
	}
	return claims, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades.
func TokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", utils.NewUnauthorizedError("invalid authorization format")
		}
		return strings.TrimPrefix(authHeader, "Bearer "), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", utils.NewUnauthorizedError("authorization required")
}

// Authenticate resolves the user behind r.
func (a *Authenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	tokenString, err := TokenFromRequest(r)
	if err != nil {
		return uuid.Nil, err
	}
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}

// Middleware rejects requests without a valid token and stores the caller's
// user ID in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r)
		if err != nil {
			a.logger.Info("unauthorized request", "path", r.URL.Path, "err", err)
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetUserIDInContext(r.Context(), userID)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": "Unauthorized",
	})
}

// Define a custom context key type to avoid collisions
type contextKey string

// UserIDKey is the key used to store the user ID in the context
const UserIDKey contextKey = "user_id"

// SetUserIDInContext saves the user ID in the request context
func SetUserIDInContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the user ID from the context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
