package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"ledgerline/internal/repo"
)

type AuthConfig struct {
	JWTSecret         string
	AllowLegacyHeader bool
	Logger            *zap.Logger
}

// identity is the authenticated user, before any org membership check.
type identity struct {
	UserID string
	Source string
}

type identityKey struct{}

func (c AuthConfig) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

func authenticateJWT(token string, secret string) (identity, error) {
	if strings.TrimSpace(secret) == "" {
		return identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return identity{}, err
	}
	if !parsed.Valid {
		return identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return identity{}, errors.New("subject claim required")
	}
	return identity{UserID: claims.Subject, Source: "jwt"}, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (identity, error) {
	if strings.TrimSpace(key) == "" {
		return identity{}, errors.New("api key required")
	}
	hash := repo.HashAPIKey(key)
	apiKey, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return identity{}, err
	}
	if apiKey.UserID == "" {
		return identity{}, errors.New("api key missing user")
	}
	return identity{UserID: apiKey.UserID, Source: "api_key"}, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			bearer := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			legacyUser := strings.TrimSpace(req.Header.Get("X-User-Id"))

			if bearer != "" {
				token, ok := bearerToken(bearer)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials", nil))
					return
				}
				id, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
				return
			}

			if apiKeyHeader != "" {
				id, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
				return
			}

			if legacyUser != "" && cfg.AllowLegacyHeader {
				cfg.logger().Warn("using legacy X-User-Id header without auth; deprecated and ignored when Authorization or X-Api-Key is present",
					zap.String("user_id", legacyUser))
				id := identity{UserID: legacyUser, Source: "legacy_header"}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
