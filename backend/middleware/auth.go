// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/apperr"
	"github.com/angad2803/Thapar-Marketplace/backend/models"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
)

// Claims represents the JWT claims structure. Tokens from the marketplace
// identity service carry the user id as "id"; "user_id" and "sub" are
// accepted too.
type Claims struct {
	UserID   string   `json:"user_id,omitempty"`
	LegacyID string   `json:"id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns the authenticated user id.
func (c *Claims) Subject() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.LegacyID != "":
		return c.LegacyID
	default:
		return c.RegisteredClaims.Subject
	}
}

// DisplayName is the name shown to other users.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Username
}

type contextKey int

const (
	userIDKey contextKey = iota
	claimsKey
)

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}
}

// Authenticate verifies token and returns its claims. Every failure is an
// Unauthenticated error.
func (a *Authenticator) Authenticate(token string) (*Claims, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("No token provided")
	}
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "Token expired", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "Invalid token issuer", err)
	case err != nil:
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "Invalid token", err)
	}
	if claims.Subject() == "" {
		return nil, apperr.Unauthenticated("Invalid token")
	}
	return claims, nil
}

// Issue signs a token for userID. The server itself never logs users in; this
// exists for the dev CLI and tests.
func (a *Authenticator) Issue(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// user id and claims on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			WriteError(w, apperr.Unauthenticated("Unauthorized: No authorization header"))
			return
		}
		claims, err := a.Authenticate(token)
		if err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtSecret string, issuer string) func(http.Handler) http.Handler {
	return NewAuthenticator(jwtSecret, issuer).Middleware
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.Subject())
	return context.WithValue(ctx, claimsKey, claims)
}

// WithUserID is WithClaims for callers that only know the id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return WithClaims(ctx, &Claims{UserID: userID})
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// GetUserID extracts the user ID from the request context
func GetUserID(r *http.Request) (string, bool) {
	return UserIDFromContext(r.Context())
}

// GetClaims extracts the full claims from the request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	return claims, ok
}

// SyncUsers mirrors the identity carried by each token into the local user
// table, once per user per process. Tokens without a display name are left
// to the identity service to provision.
func SyncUsers(users storage.UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	var seen sync.Map
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r)
			if ok && claims.DisplayName() != "" {
				id := claims.Subject()
				if _, done := seen.Load(id); !done {
					err := users.UpsertUser(r.Context(), models.User{
						ID:    id,
						Name:  claims.DisplayName(),
						Email: claims.Email,
					})
					if err != nil {
						logger.Warn("sync user", zap.String("user_id", id), zap.Error(err))
					} else {
						seen.Store(id, struct{}{})
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
