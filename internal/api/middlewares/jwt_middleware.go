package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey string

const organizationKey ctxKey = "organization_id"

// OrganizationClaim is the token claim naming the caller's tenant.
const OrganizationClaim = "organization_id"

// JWTMiddleware validates the bearer token and attaches the tenant id to the request context.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing or invalid token", http.StatusUnauthorized)
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			raw, ok := claims[OrganizationClaim].(string)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}
			orgID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := WithOrganizationID(r.Context(), orgID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOrganizationID stores the tenant id in ctx.
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationKey, organizationID)
}

// OrganizationID returns the tenant id attached by JWTMiddleware.
func OrganizationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(organizationKey).(string)
	return id, ok && id != ""
}

// IssueToken signs a tenant token valid for ttl, used by the CLI and tests.
func IssueToken(secret, organizationID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		OrganizationClaim: organizationID,
		"exp":             time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}
