package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vidasaude/telehealth-core/internal/apperr"
	"github.com/vidasaude/telehealth-core/internal/appointment"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/payment"
)

// AppointmentService is the lifecycle surface the handlers drive.
type AppointmentService interface {
	Create(ctx context.Context, actor auth.Identity, in appointment.CreateInput) (*appointment.Appointment, error)
	Get(ctx context.Context, id int64, actor auth.Identity) (*appointment.Appointment, error)
	ListForActor(ctx context.Context, actor auth.Identity, limit, offset int) ([]appointment.Appointment, error)
	Join(ctx context.Context, id int64, actor auth.Identity) (*appointment.JoinResult, error)
	Cancel(ctx context.Context, id int64, actor auth.Identity, reason string) error
	Complete(ctx context.Context, id int64, actor auth.Identity) (*appointment.Appointment, error)
	Delete(ctx context.Context, rawID string, actor auth.Identity) error
	Entitlements(ctx context.Context, actor auth.Identity) (appointment.Entitlement, error)
	AuthorizePayment(ctx context.Context, actor auth.Identity, in appointment.AuthorizeInput) (*payment.Intent, error)
}

type handlers struct {
	svc  AppointmentService
	errs errorWriter
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Create(r.Context(), actor(r), req.toInput())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	list, err := h.svc.ListForActor(r.Context(), actor(r), limit, offset)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{
		Appointments: list,
		Limit:        appointment.PageLimit(limit),
		Offset:       offset,
	})
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := appointment.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	appt, err := h.svc.Get(r.Context(), id, actor(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) joinAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := appointment.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	res, err := h.svc.Join(r.Context(), id, actor(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := appointment.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	// The body is optional.
	var req CancelAppointmentRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	if err := h.svc.Cancel(r.Context(), id, actor(r), req.Reason); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "appointment cancelled"})
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := appointment.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	appt, err := h.svc.Complete(r.Context(), id, actor(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// deleteAppointment passes the raw id through so the service can accept
// emergency placeholder ids.
func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "appointment deleted"})
}

func (h *handlers) authorizePayment(w http.ResponseWriter, r *http.Request) {
	var req AuthorizePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	intent, err := h.svc.AuthorizePayment(r.Context(), actor(r), appointment.AuthorizeInput{
		Amount:      req.Amount,
		Emergency:   req.IsEmergency,
		Description: req.Description,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actor(r))
}

func (h *handlers) entitlements(w http.ResponseWriter, r *http.Request) {
	ent, err := h.svc.Entitlements(r.Context(), actor(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

// actor returns the identity placed on the context by auth.RequireAuth.
func actor(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, apperr.KindValidation, "could not parse JSON")
		return false
	}
	return true
}

func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, apperr.KindValidation, "could not parse JSON")
	return false
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, apperr.KindValidation, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
