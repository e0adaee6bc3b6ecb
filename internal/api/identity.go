// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dopaminewatch/realtime/internal/logging"
)

// UserIDHeader carries the user identity set by an upstream gateway.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

// IdentityResolver extracts the caller's user ID from a request.
//
// With a secret configured, the ID is the "sub" claim of an HS256 bearer
// token taken from the Authorization header or, for browser WebSocket
// clients that cannot set headers, the "token" query parameter. Without a
// secret, the ID is trusted from the X-User-ID header or "user_id" query.
type IdentityResolver struct {
	secret []byte
	parser *jwt.Parser
}

// NewIdentityResolver creates a resolver. An empty secret selects header
// trust mode.
func NewIdentityResolver(secret string) *IdentityResolver {
	return &IdentityResolver{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verifies reports whether tokens are verified rather than headers trusted.
func (ir *IdentityResolver) Verifies() bool {
	return len(ir.secret) > 0
}

// Resolve returns the user ID for r.
func (ir *IdentityResolver) Resolve(r *http.Request) (string, error) {
	if !ir.Verifies() {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if userID == "" {
			return "", ErrIdentityRequired
		}
		return userID, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return "", ErrIdentityRequired
	}
	token, err := ir.parser.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return ir.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// RequireIdentity rejects requests without a resolvable identity and stores
// the user ID in the request context.
func (ir *IdentityResolver) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := ir.Resolve(r)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("identity rejected")
			respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		ctx = logging.ContextWithUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the identity stored by RequireIdentity.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
