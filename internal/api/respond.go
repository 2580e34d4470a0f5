package api

import (
	"encoding/json"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vidasaude/telehealth-core/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Message: message, Error: string(kind)})
}

// errorWriter translates service errors into JSON responses. Causes of
// internal errors reach the client only when dev is set.
type errorWriter struct {
	dev bool
}

func (ew errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if kind != apperr.KindInternal {
		if status >= http.StatusInternalServerError {
			log.Warn().Err(err).Str("request_id", chimiddleware.GetReqID(r.Context())).Msg("provider failure")
		}
		writeJSON(w, status, ErrorResponse{Message: apperr.Message(err), Error: string(kind)})
		return
	}

	log.Error().
		Err(err).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")

	resp := ErrorResponse{Message: "internal server error", Error: string(kind)}
	if ew.dev {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, apperr.KindNotFound, "route not found")
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Message: "method not allowed",
		Error:   "method_not_allowed",
	})
}
