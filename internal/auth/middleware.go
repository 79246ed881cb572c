//
//
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/config"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
)

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

const (
	ScopeRead      = "read"
	ScopeTelemetry = "telemetry"
	ScopeInject    = "inject"
)

// Fixed tokens accepted when dev tokens are enabled.
const (
	DevViewerToken   = "viewer-token"
	DevOperatorToken = "operator-token"
)

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier  *Verifier
	devTokens bool
	disabled  bool
}

// NewMiddleware creates a middleware that accepts only the dev tokens.
func NewMiddleware() *Middleware {
	return &Middleware{devTokens: true}
}

// NewMiddlewareWithVerifier creates a middleware backed by a JWT verifier.
func NewMiddlewareWithVerifier(verifier *Verifier, devTokens bool) *Middleware {
	return &Middleware{verifier: verifier, devTokens: devTokens}
}

// NewMiddlewareFromConfig builds the middleware the auth section describes. An RS256
// public key takes precedence over an HMAC secret.
func NewMiddlewareFromConfig(cfg config.AuthConfig) (*Middleware, error) {
	if !cfg.Enabled {
		return &Middleware{disabled: true}, nil
	}

	var vc *VerifierConfig
	switch {
	case cfg.PublicKeyFile != "":
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		vc = &VerifierConfig{Algorithm: "RS256", PublicKeyPEM: string(pemData), Issuer: cfg.Issuer}
	case cfg.HMACSecret != "":
		vc = &VerifierConfig{Algorithm: "HS256", SecretKey: cfg.HMACSecret, Issuer: cfg.Issuer}
	}

	m := &Middleware{devTokens: cfg.AllowDevTokens}
	if vc != nil {
		v, err := NewVerifier(*vc)
		if err != nil {
			return nil, err
		}
		m.verifier = v
	}
	return m, nil
}

// RequireAuth creates middleware that requires authentication. The token subject
// becomes the audit actor for the request.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			next(w, r)
			return
		}

		var claims *Claims
		if m.disabled {
			claims = &Claims{
				Subject: "anonymous",
				Roles:   []string{RoleOperator},
				Scopes:  []string{ScopeRead, ScopeTelemetry, ScopeInject},
			}
		} else {
			token, err := m.extractBearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Authentication required", nil)
				return
			}

			claims, err = m.verifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Invalid token", nil)
				return
			}
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = audit.WithActor(ctx, claims.Subject)
		next(w, r.WithContext(ctx))
	}
}

// RequireScope creates middleware that requires specific scopes.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromRequest(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Authentication required", nil)
				return
			}

			if !hasRequiredScopes(claims, requiredScopes) {
				writeError(w, http.StatusForbidden, "FORBIDDEN",
					"Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}

// RequireRole creates middleware that requires any of the given roles.
func (m *Middleware) RequireRole(requiredRoles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromRequest(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED",
					"Authentication required", nil)
				return
			}

			if !hasRequiredRoles(claims, requiredRoles) {
				writeError(w, http.StatusForbidden, "FORBIDDEN",
					"Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}

func (m *Middleware) extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	return token, nil
}

func (m *Middleware) verifyToken(token string) (*Claims, error) {
	if m.devTokens {
		switch token {
		case DevViewerToken:
			return &Claims{
				Subject: "dev-viewer",
				Roles:   []string{RoleViewer},
				Scopes:  []string{ScopeRead, ScopeTelemetry},
			}, nil
		case DevOperatorToken:
			return &Claims{
				Subject: "dev-operator",
				Roles:   []string{RoleOperator},
				Scopes:  []string{ScopeRead, ScopeTelemetry, ScopeInject},
			}, nil
		}
	}

	if m.verifier == nil {
		return nil, fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
	}
	return m.verifier.VerifyToken(token)
}

func hasRequiredScopes(claims *Claims, requiredScopes []string) bool {
	if claims == nil {
		return false
	}

	for _, required := range requiredScopes {
		found := false
		for _, scope := range claims.Scopes {
			if scope == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// hasRequiredRoles reports whether claims hold any of requiredRoles.
func hasRequiredRoles(claims *Claims, requiredRoles []string) bool {
	if claims == nil {
		return false
	}
	if len(requiredRoles) == 0 {
		return true
	}

	for _, required := range requiredRoles {
		for _, role := range claims.Roles {
			if role == required {
				return true
			}
		}
	}

	return false
}

// GetClaimsFromRequest extracts claims from the request context.
func GetClaimsFromRequest(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// IsOperator checks if the user has the operator role.
func IsOperator(claims *Claims) bool {
	return hasRequiredRoles(claims, []string{RoleOperator})
}

// CanInject checks if the user may inject inbound events.
func CanInject(claims *Claims) bool {
	return hasRequiredScopes(claims, []string{ScopeInject})
}

// writeError writes an error response in the API format.
func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	}

	if details != nil {
		response["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}
