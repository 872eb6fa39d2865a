package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/infrastructure/auth"
)

type ownerKey struct{}

// AuthMiddleware requires an "Authorization: Bearer <token>" header signed by
// jwtManager and puts the token's owner id on the request context.
func AuthMiddleware(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing or malformed bearer token")
				return
			}

			claims, err := jwtManager.Verify(token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejected bearer token")
				if errors.Is(err, auth.ErrExpiredToken) {
					unauthorized(w, "token expired")
					return
				}
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), claims.OwnerID)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="coinledger"`)
	writeJSONError(w, http.StatusUnauthorized, message)
}

func WithOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerIDFromContext returns the owner set by AuthMiddleware.
func OwnerIDFromContext(ctx context.Context) (int64, bool) {
	ownerID, ok := ctx.Value(ownerKey{}).(int64)
	return ownerID, ok
}
