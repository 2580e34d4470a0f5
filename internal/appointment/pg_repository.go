package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const appointmentColumns = `id, user_id, doctor_id, scheduled_at, duration_minutes, status, type,
	room_name, room_url, payment_intent_id, payment_status, amount, notes, created_at, updated_at`

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FullName,
		&role,
		&u.Plan,
		&u.StripeCustomerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Role = auth.Role(role)
	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var paymentStatus *string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.Type,
		&a.RoomName,
		&a.RoomURL,
		&a.PaymentIntentID,
		&paymentStatus,
		&a.Amount,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if paymentStatus != nil {
		ps := PaymentStatus(*paymentStatus)
		a.PaymentStatus = &ps
	}
	return &a, nil
}

// scanConditional scans the RETURNING row of a guarded UPDATE. No row
// means the guard failed.
func scanConditional(row pgx.Row) (*Appointment, error) {
	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrNotApplied
	}
	return a, err
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, full_name, role, plan, stripe_customer_id
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if f.DoctorID != nil {
		cond := "doctor_id = " + arg(*f.DoctorID)
		if f.IncludeUnassigned {
			cond = "(" + cond + " OR doctor_id IS NULL)"
		}
		where = append(where, cond)
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_at DESC, id DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	var paymentStatus *string
	if in.PaymentStatus != nil {
		s := string(*in.PaymentStatus)
		paymentStatus = &s
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (user_id, doctor_id, scheduled_at, duration_minutes, status, type,
			payment_intent_id, payment_status, amount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		in.UserID, in.DoctorID, in.ScheduledAt, in.DurationMinutes, string(in.Type),
		in.PaymentIntentID, paymentStatus, in.Amount, in.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) AssignDoctorIfEmpty(ctx context.Context, id, doctorID int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND doctor_id IS NULL
		RETURNING `+appointmentColumns, id, doctorID)

	return scanConditional(row)
}

func (r *PgRepository) SetRoomIfEmpty(ctx context.Context, id int64, roomName, roomURL string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET room_name = $2,
		    room_url = $3,
		    updated_at = now()
		WHERE id = $1
		  AND room_name IS NULL
		RETURNING `+appointmentColumns, id, roomName, roomURL)

	return scanConditional(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from))

	return scanConditional(row)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id int64, note string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    payment_status = CASE WHEN payment_intent_id IS NULL THEN payment_status ELSE 'cancelled' END,
		    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		  AND payment_status IS DISTINCT FROM 'completed'
		RETURNING `+appointmentColumns, id, note)

	return scanConditional(row)
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id int64, captured bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    payment_status = CASE WHEN $2 THEN 'completed' ELSE payment_status END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'in_progress'
		RETURNING `+appointmentColumns, id, captured)

	return scanConditional(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND payment_status IS DISTINCT FROM 'completed'
		  AND (type = 'emergency' OR status NOT IN ('in_progress', 'completed'))
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment: %w", err)
	}
	if exists {
		return ErrNotApplied
	}
	return ErrAppointmentNotFound
}

func (r *PgRepository) FindOverdueInProgress(ctx context.Context, now time.Time, grace time.Duration) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'in_progress'
		  AND scheduled_at + make_interval(mins => duration_minutes) + make_interval(secs => $2) < $1
		ORDER BY scheduled_at
	`, now, grace.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) InsertNotification(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, appointment_id, kind, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, n.UserID, n.AppointmentID, n.Kind, n.Title, n.Message, nullableTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
