package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type actorKey struct{}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFromContext returns the authenticated actor, or "" for anonymous requests.
func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// actorMiddleware resolves the actor identity. With a secret configured the actor is
// the subject of an HS256 bearer token; otherwise it is taken from header. Requests
// without credentials pass through anonymously so respondent routes keep working;
// editor operations reject an empty actor themselves.
func actorMiddleware(secret, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if actor := strings.TrimSpace(r.Header.Get(header)); actor != "" {
					r = r.WithContext(withActor(r.Context(), actor))
				}
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				next.ServeHTTP(w, r)
				return
			}
			tokenString, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
				return
			}
			subject, err := verifyToken(secret, tokenString)
			if err != nil {
				zap.S().Debugw("rejected bearer token", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), subject)))
		})
	}
}

func verifyToken(secret, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return subject, nil
}
