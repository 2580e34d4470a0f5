package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

const defaultSessionTTL = 24 * time.Hour

type SessionResponse struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// sessionHandlers trade an already resolved credential for a server-side
// session, which the resolver then accepts from the cookie or X-Session-ID.
type sessionHandlers struct {
	store    auth.SessionStore
	resolver *auth.Resolver
	ttl      time.Duration
	secure   bool
	now      func() time.Time
	errs     errorWriter
}

func (h *sessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	id := actor(r)
	sid := uuid.NewString()

	if err := h.store.Save(r.Context(), sid, id, h.ttl); err != nil {
		h.errs.write(w, r, fmt.Errorf("save session for user %d: %w", id.ID, err))
		return
	}

	expires := h.now().Add(h.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     h.resolver.SessionCookie(),
		Value:    sid,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: sid, ExpiresAt: expires.UTC()})
}

func (h *sessionHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if sid := h.resolver.SessionID(r); sid != "" {
		if err := h.store.Delete(r.Context(), sid); err != nil {
			log.Warn().Err(err).Msg("failed to delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.resolver.SessionCookie(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "signed out"})
}
