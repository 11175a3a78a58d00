package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// FromContext returns the authenticated user's claims, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// RequireBearer rejects requests without a valid access token. Errors use
// the {"detail": ...} body API clients expect.
func (m *JWTManager) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			validation.WriteJSON(w, map[string]string{"detail": "Authentication credentials were not provided."}, http.StatusUnauthorized)
			return
		}
		claims, err := m.ValidateToken(parts[1], KindAccess)
		if err != nil {
			validation.WriteJSON(w, map[string]string{"detail": "Given token not valid for any token type"}, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Sessions handles the cookie session used by the HTML sites.
type Sessions struct {
	jwt    *JWTManager
	name   string
	secure bool
}

func NewSessions(jwt *JWTManager, cookieName string, secure bool) *Sessions {
	return &Sessions{jwt: jwt, name: cookieName, secure: secure}
}

// Load attaches the session user, when the cookie is valid, to the request.
func (s *Sessions) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.name)
		if err == nil && cookie.Value != "" {
			if claims, err := s.jwt.ValidateToken(cookie.Value, KindSession); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLogin redirects anonymous visitors to loginURL.
func (s *Sessions) RequireLogin(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				q := url.Values{"next": {r.URL.RequestURI()}}
				http.Redirect(w, r, loginURL+"?"+q.Encode(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Sessions) Login(w http.ResponseWriter, user *models.User) error {
	token, err := s.jwt.GenerateToken(user, KindSession)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.jwt.now().Add(s.jwt.sessionTTL),
	})
	return nil
}

func (s *Sessions) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
