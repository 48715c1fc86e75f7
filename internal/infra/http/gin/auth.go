package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bookingengine/internal/app/policies"
)

// Claims is the bearer token payload; the subject is the user id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var errEmptySubject = errors.New("auth: token has no subject")

// Authenticator validates HS256 bearer tokens and puts the caller on the
// request context. Requests without a token pass through anonymously.
type Authenticator struct {
	Secret []byte
	Logger *slog.Logger
}

func (a Authenticator) Handle(c *gin.Context) {
	raw := extractBearerToken(c.GetHeader("Authorization"))
	if raw == "" || len(a.Secret) == 0 {
		c.Next()
		return
	}
	p, err := a.parse(raw)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Debug("token validation failed", "error", err)
		}
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or expired token")
		return
	}
	c.Request = c.Request.WithContext(policies.WithPrincipal(c.Request.Context(), p))
	c.Next()
}

func (a Authenticator) parse(raw string) (policies.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return policies.Principal{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return policies.Principal{}, errEmptySubject
	}
	roles := make([]string, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	return policies.Principal{UserID: claims.Subject, Roles: roles}, nil
}

// IssueToken signs a token for userID. Used by tooling and tests.
func IssueToken(secret []byte, userID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func principalFrom(c *gin.Context) (policies.Principal, bool) {
	return policies.PrincipalFrom(c.Request.Context())
}

// requireRole answers 401/403 itself; callers just return when ok is false.
func requireRole(c *gin.Context, role string) (policies.Principal, bool) {
	p, ok := principalFrom(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return policies.Principal{}, false
	}
	if role != "" && !p.HasRole(role) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		return policies.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
