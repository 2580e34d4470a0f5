package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	HeaderAuthToken = "X-Auth-Token"
	HeaderSessionID = "X-Session-ID"
	CookieAuthToken = "auth_token"
)

// Resolver attaches at most one Identity to each request. It never rejects
// a request: a missing, expired or tampered credential leaves the request
// anonymous, and RequireAuth enforces authentication where needed.
type Resolver struct {
	sessions      SessionStore
	verifier      *TokenVerifier
	sessionCookie string
}

func NewResolver(sessions SessionStore, verifier *TokenVerifier, sessionCookie string) *Resolver {
	if sessionCookie == "" {
		sessionCookie = "sid"
	}
	return &Resolver{sessions: sessions, verifier: verifier, sessionCookie: sessionCookie}
}

// Resolve returns the identity carried by r, trying in order: an identity
// already on the context, a server-side session, a header token and
// finally the auth_token cookie.
func (res *Resolver) Resolve(r *http.Request) (Identity, bool) {
	if id, ok := FromContext(r.Context()); ok {
		return id, true
	}

	if id, ok := res.fromSession(r); ok {
		return id, true
	}

	if raw := headerToken(r); raw != "" {
		if id, err := res.verifier.Verify(raw); err == nil {
			return id, true
		}
	}

	if c, err := r.Cookie(CookieAuthToken); err == nil && c.Value != "" {
		if id, err := res.verifier.Verify(c.Value); err == nil {
			return id, true
		}
	}

	return Identity{}, false
}

// SessionCookie is the name of the cookie carrying the session id.
func (res *Resolver) SessionCookie() string {
	return res.sessionCookie
}

// SessionID returns the session id sent in the X-Session-ID header or the
// session cookie, the header winning.
func (res *Resolver) SessionID(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get(HeaderSessionID)); sid != "" {
		return sid
	}
	if c, err := r.Cookie(res.sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (res *Resolver) fromSession(r *http.Request) (Identity, bool) {
	if res.sessions == nil {
		return Identity{}, false
	}

	sid := res.SessionID(r)
	if sid == "" {
		return Identity{}, false
	}

	id, err := res.sessions.Lookup(r.Context(), sid)
	if err != nil {
		log.Debug().Err(err).Msg("session lookup failed")
		return Identity{}, false
	}
	return id, true
}

func headerToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderAuthToken)); v != "" {
		return v
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Middleware resolves the identity and stores it on the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := res.Resolve(r); ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a resolved identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"message": "authentication required",
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
