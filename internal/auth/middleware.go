package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	rolesKey  contextKey = "roles"
)

// Claims is the part of a bearer token the service relies on.
type Claims struct {
	Subject string
	Roles   []string
}

// Verifier checks a raw bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// tokenClaims mirrors the Keycloak layout: realm roles under realm_access.
type tokenClaims struct {
	Sub         string `json:"sub"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	Roles []string `json:"roles"`
}

func (c tokenClaims) toClaims() *Claims {
	roles := append([]string{}, c.RealmAccess.Roles...)
	roles = append(roles, c.Roles...)
	return &Claims{Subject: c.Sub, Roles: roles}
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and verifies tokens against its keys.
func NewOIDCVerifier(ctx context.Context, issuer string) (Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// SkipClientIDCheck: access tokens are issued to the front-end client.
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var c tokenClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return c.toClaims(), nil
}

type hmacVerifier struct {
	secret []byte
}

// NewHMACVerifier accepts HS256 tokens signed with a shared secret. Meant for
// local and test deployments without an identity provider.
func NewHMACVerifier(secret string) Verifier {
	return &hmacVerifier{secret: []byte(secret)}
}

type hmacClaims struct {
	jwt.RegisteredClaims
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	Roles []string `json:"roles"`
}

func (v *hmacVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	var c hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &c, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	tc := tokenClaims{Sub: c.Subject, Roles: c.Roles}
	tc.RealmAccess.Roles = c.RealmAccess.Roles
	return tc.toClaims(), nil
}

// ExtractTokenFromRequest reads "Authorization: Bearer <token>".
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's id and roles in the request context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			claims, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				unauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				unauthorized(w, "token has no subject")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Subject, claims.Roles...)))
		})
	}
}

// RequireRole lets through only callers holding role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				utils.WriteJSON(w, http.StatusForbidden, utils.CodedErrorResponse("forbidden", "Forbidden", "missing role "+role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, reason string) {
	utils.WriteJSON(w, http.StatusUnauthorized, utils.CodedErrorResponse("unauthorized", "Unauthorized", reason))
}

// WithIdentity stores a caller identity in ctx. Handlers read it back with
// UserID and HasRole.
func WithIdentity(ctx context.Context, userID string, roles ...string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, rolesKey, roles)
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}

func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(rolesKey).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
