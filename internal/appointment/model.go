package appointment

import (
	"time"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Type string

const (
	TypeRegular      Type = "regular"
	TypeTelemedicine Type = "telemedicine"
	TypeEmergency    Type = "emergency"
)

type PaymentStatus string

const (
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

type Appointment struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"userId"`
	DoctorID        *int64         `json:"doctorId"`
	ScheduledAt     time.Time      `json:"scheduledAt"`
	DurationMinutes int            `json:"durationMinutes"`
	Status          Status         `json:"status"`
	Type            Type           `json:"type"`
	RoomName        *string        `json:"roomName"`
	RoomURL         *string        `json:"roomUrl"`
	PaymentIntentID *string        `json:"paymentIntentId"`
	PaymentStatus   *PaymentStatus `json:"paymentStatus"`
	Amount          *int64         `json:"amount"`
	Notes           string         `json:"notes"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (a *Appointment) IsEmergency() bool {
	return a.Type == TypeEmergency
}

// EndsAt is the scheduled end of the consultation.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// HasAuthorizedPayment reports whether a held authorization can still be
// captured or released.
func (a *Appointment) HasAuthorizedPayment() bool {
	return a.PaymentIntentID != nil && *a.PaymentIntentID != "" &&
		a.PaymentStatus != nil && *a.PaymentStatus == PaymentAuthorized
}

func (a *Appointment) paymentCompleted() bool {
	return a.PaymentStatus != nil && *a.PaymentStatus == PaymentCompleted
}

// deletable mirrors the guard of Repository.DeleteAppointment.
func (a *Appointment) deletable() bool {
	if a.paymentCompleted() {
		return false
	}
	return a.IsEmergency() || (a.Status != StatusInProgress && a.Status != StatusCompleted)
}

// NewAppointment is the insert shape for CreateAppointment.
type NewAppointment struct {
	UserID          int64
	DoctorID        *int64
	ScheduledAt     time.Time
	DurationMinutes int
	Type            Type
	PaymentIntentID *string
	PaymentStatus   *PaymentStatus
	Amount          *int64
	Notes           string
}

// User is the part of a users row this service reads.
type User struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	FullName         string    `json:"fullName"`
	Role             auth.Role `json:"role"`
	Plan             string    `json:"plan"`
	StripeCustomerID *string   `json:"-"`
}

type Notification struct {
	ID            int64
	UserID        int64
	AppointmentID *int64
	Kind          string
	Title         string
	Message       string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter selects appointments for a listing. A nil field does not
// filter.
type ListFilter struct {
	UserID   *int64
	DoctorID *int64
	// IncludeUnassigned adds appointments with no doctor to a DoctorID
	// filter.
	IncludeUnassigned bool
	Status            *Status
	Limit             int
	Offset            int
}
