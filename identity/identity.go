// Package identity authenticates requests with signed JWT access tokens and
// puts the resulting principal in the request context.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edgeee/community/community"
)

const issuer = "community"

// Claims represents the payload of an access token.
type Claims struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the profile the token was issued for.
func (c *Claims) Principal() community.Principal {
	return community.Principal{
		ID:          c.UserID,
		DisplayName: c.Name,
		AvatarURL:   c.AvatarURL,
		Role:        community.Role(c.Role),
	}
}

// Manager handles token creation and verification.
type Manager struct {
	secretKey []byte
	now       func() time.Time
}

// NewManager creates a new Manager signing with secretKey.
func NewManager(secretKey string) *Manager {
	return &Manager{secretKey: []byte(secretKey), now: time.Now}
}

// Generate creates a signed access token for p.
func (m *Manager) Generate(p community.Principal, expiry time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:    p.ID,
		Name:      p.DisplayName,
		AvatarURL: p.AvatarURL,
		Role:      string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// Middleware authenticates every request except those for public paths.
// The token is read from the Authorization header, or from the token query
// parameter for browsers opening a websocket.
type Middleware struct {
	Manager *Manager
	Logger  *slog.Logger
	Public  []string
}

// Wrap returns next guarded by m.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range m.Public {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := bearer(r)
		if token == "" {
			m.unauthorized(w, errors.New("missing token"))
			return
		}
		claims, err := m.Manager.Verify(token)
		if err != nil {
			m.unauthorized(w, err)
			return
		}

		ctx := community.WithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func (m *Middleware) unauthorized(w http.ResponseWriter, err error) {
	type response struct {
		Error string `json:"error"`
	}
	m.Logger.Info("Unauthenticated request", "error", err.Error())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(response{Error: "Unauthenticated"})
}
