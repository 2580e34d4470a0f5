package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/vidasaude/telehealth-core/internal/apperr"
)

var (
	ErrUserNotFound        = apperr.NotFound("user not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	// ErrNotApplied is returned by conditional updates whose guard did not
	// match the current row.
	ErrNotApplied = errors.New("conditional update not applied")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)

	// Conditional updates. Each one is a single statement and returns
	// ErrNotApplied when the guard fails.
	AssignDoctorIfEmpty(ctx context.Context, id, doctorID int64) (*Appointment, error)
	SetRoomIfEmpty(ctx context.Context, id int64, roomName, roomURL string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)
	// CancelAppointment cancels unless already cancelled or paid, and
	// appends note.
	CancelAppointment(ctx context.Context, id int64, note string) (*Appointment, error)
	// CompleteAppointment moves in_progress to completed and marks an
	// authorized payment as completed when captured is true.
	CompleteAppointment(ctx context.Context, id int64, captured bool) (*Appointment, error)

	// DeleteAppointment removes the row unless its payment was captured or a
	// non-emergency consultation has already started. ErrNotApplied when the
	// guard fails.
	DeleteAppointment(ctx context.Context, id int64) error

	// Completion worker
	FindOverdueInProgress(ctx context.Context, now time.Time, grace time.Duration) ([]Appointment, error)

	InsertNotification(ctx context.Context, n Notification) error
	InsertEvent(ctx context.Context, ev EventLog) error
}
