package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
)

const AdminRole = "admin"

// AdminClaims are the claims of an operator token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// NewAdminToken signs an operator token for subject, valid for ttl.
func NewAdminToken(signingKey []byte, subject string, ttl time.Duration) (string, error) {
	if len(signingKey) == 0 {
		return "", fmt.Errorf("empty admin key")
	}
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: []string{AdminRole},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

// AdminAuth requires an HMAC signed bearer token carrying the admin role.
func AdminAuth(signingKey []byte) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tokenStr == "" {
				presenter.Error(w, r, "login required", http.StatusUnauthorized)
				return
			}

			var claims AdminClaims
			token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return signingKey, nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				presenter.Error(w, r, "invalid session token", http.StatusUnauthorized)
				return
			}
			if !slices.Contains(claims.Roles, AdminRole) {
				presenter.Error(w, r, "insufficient privileges", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
