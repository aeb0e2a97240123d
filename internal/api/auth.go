package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenTTL = 7 * 24 * time.Hour

// Auth verifies the single admin user and issues JWT bearer tokens for the
// browser frontend.
type Auth struct {
	secret   []byte
	username string
	password string
	logger   *zap.Logger
}

// NewAuth creates the auth service. Credentials and secret come from the
// environment; with empty credentials every login is rejected.
func NewAuth(secret, username, password string, logger *zap.Logger) *Auth {
	if username == "" || password == "" {
		logger.Warn("admin credentials not configured, logins will be rejected")
	}
	return &Auth{
		secret:   []byte(secret),
		username: username,
		password: password,
		logger:   logger,
	}
}

// VerifyCredentials checks a username/password pair.
func (a *Auth) VerifyCredentials(username, password string) bool {
	if a.username == "" || a.password == "" {
		return false
	}
	return username == a.username && password == a.password
}

// GenerateToken issues a signed token for the given username.
func (a *Auth) GenerateToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"jti": uuid.NewString(),
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyToken parses and validates a token, returning the username.
func (a *Auth) VerifyToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := a.VerifyToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}
