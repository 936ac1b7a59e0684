package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const ClerkIDKey contextKey = "clerkID"

// TokenVerifier returns the identity id carried by a bearer token.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ClerkVerifier checks session tokens against Clerk's JWKS. clerk.SetKey must have been called.
func ClerkVerifier(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// HS256Verifier accepts locally minted tokens signed with secret. Meant for development and tests.
func HS256Verifier(secret string) TokenVerifier {
	key := []byte(secret)
	return func(ctx context.Context, token string) (string, error) {
		parsed, err := jwtlib.ParseWithClaims(token, &jwtlib.RegisteredClaims{}, func(t *jwtlib.Token) (any, error) {
			return key, nil
		}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithExpirationRequired())
		if err != nil {
			return "", err
		}
		sub, err := parsed.Claims.GetSubject()
		if err != nil {
			return "", err
		}
		if sub == "" {
			return "", errors.New("token has no subject")
		}
		return sub, nil
	}
}

// ChainVerifiers tries each verifier in order and returns the first identity accepted.
func ChainVerifiers(verifiers ...TokenVerifier) TokenVerifier {
	return func(ctx context.Context, token string) (string, error) {
		var errs []error
		for _, v := range verifiers {
			sub, err := v(ctx, token)
			if err == nil {
				return sub, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return "", errors.New("no token verifier configured")
		}
		return "", errors.Join(errs...)
	}
}

// AuthMiddleware validates bearer tokens and puts the identity id on the request context.
func AuthMiddleware(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
				return
			}

			clerkID, err := verify(r.Context(), token)
			if err != nil {
				zap.S().Debugf("Token verification failed: %v", err)
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClerkIDKey, clerkID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClerkID extracts the identity id from context
func GetClerkID(ctx context.Context) (string, bool) {
	clerkID, ok := ctx.Value(ClerkIDKey).(string)
	return clerkID, ok && clerkID != ""
}

// WithClerkID is used by tests that bypass the middleware.
func WithClerkID(ctx context.Context, clerkID string) context.Context {
	return context.WithValue(ctx, ClerkIDKey, clerkID)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "UNAUTHORIZED"}); err != nil {
		zap.S().Warnf("failed to write error response: %v", err)
	}
}
