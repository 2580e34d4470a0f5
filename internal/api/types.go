package api

import (
	"time"

	"github.com/vidasaude/telehealth-core/internal/appointment"
)

type CreateAppointmentRequest struct {
	UserID          int64      `json:"userId,omitempty"`
	DoctorID        *int64     `json:"doctorId"`
	ScheduledAt     *time.Time `json:"scheduledAt"`
	DurationMinutes int        `json:"durationMinutes"`
	Type            string     `json:"type"`
	IsEmergency     bool       `json:"isEmergency"`
	Notes           string     `json:"notes"`
	PaymentIntentID string     `json:"paymentIntentId"`
	Amount          int64      `json:"amount"`
}

func (req CreateAppointmentRequest) toInput() appointment.CreateInput {
	in := appointment.CreateInput{
		UserID:          req.UserID,
		DoctorID:        req.DoctorID,
		DurationMinutes: req.DurationMinutes,
		Type:            appointment.Type(req.Type),
		Emergency:       req.IsEmergency,
		Notes:           req.Notes,
	}
	if req.ScheduledAt != nil {
		in.ScheduledAt = *req.ScheduledAt
	}
	if req.PaymentIntentID != "" {
		in.Payment = &appointment.PaymentInfo{IntentID: req.PaymentIntentID, Amount: req.Amount}
	}
	return in
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AuthorizePaymentRequest struct {
	Amount      int64  `json:"amount"`
	IsEmergency bool   `json:"isEmergency"`
	Description string `json:"description"`
}

type AppointmentListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
