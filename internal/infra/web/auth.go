package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

type UserClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager validates the platform's user JWTs. Tokens are minted by the
// identity service; this core only verifies them.
type AuthManager struct {
	secret   []byte
	adminIDs map[string]struct{}
}

func NewAuthManager(secret string, adminIDs []string) *AuthManager {
	m := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		m[id] = struct{}{}
	}
	return &AuthManager{secret: []byte(secret), adminIDs: m}
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*UserClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*UserClaims, error) {
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (a *AuthManager) isAdmin(c *UserClaims) bool {
	if c.Role == "admin" {
		return true
	}
	_, ok := a.adminIDs[c.Subject]
	return ok
}

type ctxKey string

const ctxUser ctxKey = "auth_user"

// userID returns the authenticated user id stored by requireUser.
func userID(r *http.Request) string {
	if v := r.Context().Value(ctxUser); v != nil {
		return v.(*UserClaims).Subject
	}
	return ""
}

func (a *AuthManager) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, apiError{"unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthManager) requireAdmin(next http.Handler) http.Handler {
	return a.requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(ctxUser).(*UserClaims)
		if !a.isAdmin(claims) {
			writeJSON(w, http.StatusForbidden, apiError{"forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	}))
}
