package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vidasaude/telehealth-core/internal/apperr"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/clock"
	"github.com/vidasaude/telehealth-core/internal/config"
	"github.com/vidasaude/telehealth-core/internal/metrics"
	"github.com/vidasaude/telehealth-core/internal/payment"
	redisclient "github.com/vidasaude/telehealth-core/internal/redis"
	"github.com/vidasaude/telehealth-core/internal/telemetry"
	"github.com/vidasaude/telehealth-core/internal/video"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventDoctorAssigned       = "APPOINTMENT_DOCTOR_ASSIGNED"
	EventRoomAssigned         = "APPOINTMENT_ROOM_ASSIGNED"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

const (
	defaultDurationMinutes = 30
	maxDurationMinutes     = 240

	roomGrace        = 60 * time.Minute
	emergencyRoomTTL = 240 * time.Minute

	overdueLockKey = "worker:complete-overdue"
)

var (
	ErrUnauthenticated   = apperr.New(apperr.KindUnauthorized, "authentication required")
	ErrInvalidID         = apperr.Validation("invalid appointment id")
	ErrPaymentRequired   = apperr.Validation("payment authorization is required for non-emergency appointments")
	ErrNotEntitled       = apperr.Forbidden("your plan does not include emergency consultations")
	ErrNotParticipant    = apperr.Forbidden("you do not have access to this appointment")
	ErrAlreadyClaimed    = apperr.Forbidden("appointment is already assigned to another doctor")
	ErrAppointmentClosed = apperr.Conflict("appointment is no longer active")
	ErrPaymentCaptured   = apperr.Conflict("appointment payment has already been captured")
	ErrNotInProgress     = apperr.Conflict("appointment is not in progress")
	ErrNotDeletable      = apperr.Conflict("appointment has started or been paid and cannot be deleted")
)

// RoomProvisioner is the part of video.Provisioner the lifecycle needs.
type RoomProvisioner interface {
	RoomURL(name string) string
	EnsureRoom(ctx context.Context, name string, ttl time.Duration) (video.Room, error)
	MintToken(ctx context.Context, name string, p video.Participant, kind video.SessionKind) (video.AccessToken, error)
	DeleteRoom(ctx context.Context, name string) error
}

type Service struct {
	repo     Repository
	rooms    RoomProvisioner
	payments payment.Client
	locker   redisclient.Locker
	clock    clock.Clock
	cfg      config.Config
}

func NewService(repo Repository, rooms RoomProvisioner, payments payment.Client, locker redisclient.Locker, clk clock.Clock, cfg config.Config) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		repo:     repo,
		rooms:    rooms,
		payments: payments,
		locker:   locker,
		clock:    clk,
		cfg:      cfg,
	}
}

// PaymentInfo references an authorization obtained before booking.
type PaymentInfo struct {
	IntentID string `json:"paymentIntentId"`
	Amount   int64  `json:"amount"`
}

type CreateInput struct {
	// UserID books on behalf of another user. Admins only.
	UserID          int64
	DoctorID        *int64
	ScheduledAt     time.Time
	DurationMinutes int
	Type            Type
	Emergency       bool
	Notes           string
	Payment         *PaymentInfo
}

// Create books an appointment for the actor. Non-emergency bookings must
// carry a payment authorization; emergency bookings must be covered by the
// requester's plan.
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (appt *Appointment, err error) {
	ctx, end := s.span(ctx, "appointment.Create", 0)
	defer func() { end(err) }()

	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}

	requesterID := actor.ID
	if in.UserID != 0 && in.UserID != actor.ID {
		if !actor.IsAdmin() {
			return nil, apperr.Forbidden("only admins may book for another user")
		}
		requesterID = in.UserID
	}

	emergency := in.Emergency || in.Type == TypeEmergency
	typ := in.Type
	switch {
	case emergency:
		typ = TypeEmergency
	case typ == "":
		typ = TypeTelemedicine
	case typ != TypeRegular && typ != TypeTelemedicine:
		return nil, apperr.Validation("invalid appointment type")
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}
	if duration < 1 || duration > maxDurationMinutes {
		return nil, apperr.Validation("duration must be between 1 and 240 minutes")
	}

	when := in.ScheduledAt
	if when.IsZero() {
		if !emergency {
			return nil, apperr.Validation("scheduled time is required")
		}
		when = s.clock.Now()
	}

	hasPayment := in.Payment != nil && strings.TrimSpace(in.Payment.IntentID) != ""
	if hasPayment && in.Payment.Amount <= 0 {
		return nil, apperr.Validation("payment amount must be positive")
	}
	if !emergency && !hasPayment {
		return nil, ErrPaymentRequired
	}

	requester, err := s.repo.GetUserByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Validation("requesting user does not exist")
		}
		return nil, fmt.Errorf("load requester: %w", err)
	}

	if emergency && !EmergencyEntitlement(requester.Role, requester.Plan).EmergencyConsultations {
		return nil, ErrNotEntitled
	}

	if in.DoctorID != nil {
		doctor, err := s.repo.GetUserByID(ctx, *in.DoctorID)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
		if doctor == nil || doctor.Role != auth.RoleDoctor {
			return nil, apperr.Validation("unknown doctor")
		}
	}

	na := NewAppointment{
		UserID:          requesterID,
		DoctorID:        in.DoctorID,
		ScheduledAt:     when.UTC(),
		DurationMinutes: duration,
		Type:            typ,
		Notes:           strings.TrimSpace(in.Notes),
	}
	if hasPayment {
		intentID := strings.TrimSpace(in.Payment.IntentID)
		amount := in.Payment.Amount
		status := PaymentAuthorized
		na.PaymentIntentID = &intentID
		na.Amount = &amount
		na.PaymentStatus = &status
	}

	appt, err = s.repo.CreateAppointment(ctx, na)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.notify(ctx, requesterID, appt.ID, "appointment_created", "Consulta agendada",
		fmt.Sprintf("Sua consulta foi agendada para %s.", appt.ScheduledAt.Format("02/01/2006 15:04 MST")))
	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"user_id":    requesterID,
		"doctor_id":  in.DoctorID,
		"type":       typ,
		"booked_by":  actor.ID,
		"has_intent": hasPayment,
	})

	log.Info().
		Int64("appointment_id", appt.ID).
		Int64("user_id", requesterID).
		Str("type", string(typ)).
		Msg("appointment created")

	return appt, nil
}

type JoinResult struct {
	Appointment *Appointment      `json:"appointment"`
	Room        video.Room        `json:"room"`
	Token       video.AccessToken `json:"token"`
}

// Join returns a room and a participant token for the actor. A doctor
// joining an unassigned appointment claims it, and a doctor joining a
// scheduled appointment starts it. Repeated joins reuse the persisted room.
func (s *Service) Join(ctx context.Context, id int64, actor auth.Identity) (res *JoinResult, err error) {
	ctx, end := s.span(ctx, "appointment.Join", id)
	defer func() { end(err) }()

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	acc := accessFor(appt, actor)
	if acc == accessNone {
		return nil, ErrNotParticipant
	}
	if appt.Status == StatusCancelled || appt.Status == StatusCompleted {
		return nil, ErrAppointmentClosed
	}

	if acc == accessOrphanDoctor {
		if appt, err = s.claim(ctx, appt, actor); err != nil {
			return nil, err
		}
	}

	if appt, err = s.assignRoom(ctx, appt); err != nil {
		return nil, err
	}

	ttl := time.Duration(appt.DurationMinutes)*time.Minute + roomGrace
	kind := video.SessionStandard
	if appt.IsEmergency() {
		ttl = emergencyRoomTTL
		kind = video.SessionEmergency
	}

	room, err := s.rooms.EnsureRoom(ctx, *appt.RoomName, ttl)
	if err != nil {
		return nil, err
	}

	token, err := s.rooms.MintToken(ctx, room.Name, video.Participant{
		UserID: actor.ID,
		Name:   displayName(actor),
		Role:   actor.Role,
	}, kind)
	if err != nil {
		return nil, err
	}

	if (acc == accessAssignedDoctor || acc == accessOrphanDoctor) && appt.Status == StatusScheduled {
		started, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusInProgress)
		switch {
		case err == nil:
			appt = started
			s.logEvent(ctx, appt.ID, EventAppointmentStarted, map[string]any{"doctor_id": actor.ID})
		case errors.Is(err, ErrNotApplied):
			// another join already started it
		default:
			log.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("failed to start appointment")
		}
	}

	return &JoinResult{Appointment: appt, Room: room, Token: token}, nil
}

func (s *Service) claim(ctx context.Context, appt *Appointment, actor auth.Identity) (*Appointment, error) {
	claimed, err := s.repo.AssignDoctorIfEmpty(ctx, appt.ID, actor.ID)
	switch {
	case err == nil:
		s.logEvent(ctx, appt.ID, EventDoctorAssigned, map[string]any{"doctor_id": actor.ID})
		return claimed, nil
	case errors.Is(err, ErrNotApplied):
		current, err := s.load(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if current.DoctorID != nil && *current.DoctorID == actor.ID {
			return current, nil
		}
		return nil, ErrAlreadyClaimed
	default:
		return nil, fmt.Errorf("assign doctor: %w", err)
	}
}

// assignRoom persists a room name for appt if it has none. The loser of a
// concurrent assignment adopts the winner's name.
func (s *Service) assignRoom(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if appt.RoomName != nil && *appt.RoomName != "" {
		return appt, nil
	}

	name := fmt.Sprintf("appointment-%d-%d", appt.ID, s.clock.Now().UnixMilli())
	updated, err := s.repo.SetRoomIfEmpty(ctx, appt.ID, name, s.rooms.RoomURL(name))
	switch {
	case err == nil:
		s.logEvent(ctx, appt.ID, EventRoomAssigned, map[string]any{"room_name": name})
		return updated, nil
	case errors.Is(err, ErrNotApplied):
		current, err := s.load(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if current.RoomName == nil {
			return nil, fmt.Errorf("room assignment for appointment %d was not persisted", appt.ID)
		}
		return current, nil
	default:
		return nil, fmt.Errorf("assign room: %w", err)
	}
}

// Cancel cancels the appointment and releases any held payment. Cancelling
// twice is a no-op. A captured payment cannot be cancelled here.
func (s *Service) Cancel(ctx context.Context, id int64, actor auth.Identity, reason string) (err error) {
	ctx, end := s.span(ctx, "appointment.Cancel", id)
	defer func() { end(err) }()

	appt, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if accessFor(appt, actor) == accessNone {
		return ErrNotParticipant
	}
	if appt.paymentCompleted() {
		return ErrPaymentCaptured
	}
	if appt.Status == StatusCancelled {
		return nil
	}

	_, err = s.repo.CancelAppointment(ctx, id, cancellationNote(actor, reason))
	if errors.Is(err, ErrNotApplied) {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.paymentCompleted() {
			return ErrPaymentCaptured
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}

	if appt.HasAuthorizedPayment() {
		s.releasePayment(ctx, appt)
	}

	s.notifyParticipants(ctx, appt, actor.ID, "appointment_cancelled", "Consulta cancelada",
		fmt.Sprintf("A consulta de %s foi cancelada.", appt.ScheduledAt.Format("02/01/2006 15:04 MST")))
	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
		"cancelled_by": actor.ID,
		"reason":       strings.TrimSpace(reason),
	})

	return nil
}

// Delete removes an appointment. Placeholder emergency ids that were never
// persisted are accepted as a no-op.
func (s *Service) Delete(ctx context.Context, rawID string, actor auth.Identity) (err error) {
	id, err := ParseID(rawID)
	if err != nil {
		if IsPlaceholderID(rawID) {
			log.Debug().Str("id", rawID).Msg("ignoring delete of placeholder appointment")
			return nil
		}
		return err
	}

	ctx, end := s.span(ctx, "appointment.Delete", id)
	defer func() { end(err) }()

	appt, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if accessFor(appt, actor) == accessNone {
		return ErrNotParticipant
	}
	if !appt.deletable() {
		return ErrNotDeletable
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			return nil
		case errors.Is(err, ErrNotApplied):
			return ErrNotDeletable
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	if appt.IsEmergency() && appt.RoomName != nil {
		if err := s.rooms.DeleteRoom(ctx, *appt.RoomName); err != nil {
			log.Warn().Err(err).Int64("appointment_id", id).Str("room", *appt.RoomName).Msg("failed to delete emergency room")
		}
	}
	if appt.HasAuthorizedPayment() {
		s.releasePayment(ctx, appt)
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{"deleted_by": actor.ID})
	return nil
}

// Complete captures the payment and closes an in-progress appointment.
func (s *Service) Complete(ctx context.Context, id int64, actor auth.Identity) (appt *Appointment, err error) {
	ctx, end := s.span(ctx, "appointment.Complete", id)
	defer func() { end(err) }()

	appt, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	assigned := actor.IsDoctor() && appt.DoctorID != nil && *appt.DoctorID == actor.ID
	if !actor.IsAdmin() && !assigned {
		return nil, apperr.Forbidden("only the assigned doctor can complete this appointment")
	}
	return s.complete(ctx, appt, actor.ID)
}

func (s *Service) complete(ctx context.Context, appt *Appointment, by int64) (*Appointment, error) {
	if appt.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}

	captured := false
	if appt.HasAuthorizedPayment() {
		if err := s.payments.Capture(ctx, *appt.PaymentIntentID); err != nil {
			return nil, fmt.Errorf("capture payment for appointment %d: %w", appt.ID, err)
		}
		captured = true
	}

	done, err := s.repo.CompleteAppointment(ctx, appt.ID, captured)
	if errors.Is(err, ErrNotApplied) {
		if captured {
			log.Error().Int64("appointment_id", appt.ID).Msg("payment captured but appointment changed state before completion")
		}
		return nil, ErrNotInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.notify(ctx, done.UserID, done.ID, "appointment_completed", "Consulta finalizada",
		"Sua consulta foi finalizada. Obrigado por usar a VidaSaúde.")
	s.logEvent(ctx, done.ID, EventAppointmentCompleted, map[string]any{
		"completed_by":     by,
		"payment_captured": captured,
	})
	return done, nil
}

// Get returns an appointment visible to actor.
func (s *Service) Get(ctx context.Context, id int64, actor auth.Identity) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if accessFor(appt, actor) == accessNone {
		return nil, ErrNotParticipant
	}
	return appt, nil
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PageLimit clamps a requested page size, applying the default for zero.
func PageLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLimit
	case limit > maxPageLimit:
		return maxPageLimit
	}
	return limit
}

// ListForActor lists what actor may see: patients their own appointments,
// doctors theirs plus unassigned ones, admins everything.
func (s *Service) ListForActor(ctx context.Context, actor auth.Identity, limit, offset int) ([]Appointment, error) {
	if offset < 0 {
		offset = 0
	}

	f := ListFilter{Limit: PageLimit(limit), Offset: offset}
	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		f.DoctorID = &actor.ID
		f.IncludeUnassigned = true
	case auth.RolePatient:
		f.UserID = &actor.ID
	default:
		return nil, apperr.Forbidden("appointments are not available for this account")
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}

// CompleteOverdue completes in-progress appointments whose scheduled end
// plus the grace period has passed. Only one replica sweeps at a time.
func (s *Service) CompleteOverdue(ctx context.Context) (int, error) {
	completed := 0
	err := s.locker.WithLock(ctx, overdueLockKey, func(ctx context.Context) error {
		overdue, err := s.repo.FindOverdueInProgress(ctx, s.clock.Now(), s.cfg.CompletionGrace)
		if err != nil {
			return fmt.Errorf("find overdue appointments: %w", err)
		}

		for i := range overdue {
			if _, err := s.complete(ctx, &overdue[i], 0); err != nil {
				log.Warn().Err(err).Int64("appointment_id", overdue[i].ID).Msg("failed to auto-complete appointment")
				continue
			}
			completed++
		}
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		log.Debug().Msg("overdue sweep already running elsewhere")
		return 0, nil
	}
	return completed, err
}

// Entitlements returns the emergency entitlement for actor's plan.
func (s *Service) Entitlements(ctx context.Context, actor auth.Identity) (Entitlement, error) {
	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return EmergencyEntitlement(actor.Role, ""), nil
		}
		return Entitlement{}, fmt.Errorf("load user: %w", err)
	}
	return EmergencyEntitlement(actor.Role, user.Plan), nil
}

type AuthorizeInput struct {
	Amount      int64  `json:"amount"`
	Emergency   bool   `json:"emergency"`
	Description string `json:"description"`
}

// AuthorizePayment holds funds for a future booking. Emergency
// authorizations get the plan discount.
func (s *Service) AuthorizePayment(ctx context.Context, actor auth.Identity, in AuthorizeInput) (*payment.Intent, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	amount := in.Amount
	if in.Emergency {
		ent := EmergencyEntitlement(actor.Role, user.Plan)
		if !ent.EmergencyConsultations {
			return nil, ErrNotEntitled
		}
		amount = ent.Apply(amount)
	}

	params := payment.AuthorizeParams{
		Amount:      amount,
		Currency:    s.cfg.PaymentCurrency,
		Description: in.Description,
		Metadata:    map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
	}
	if user.StripeCustomerID != nil {
		params.CustomerID = *user.StripeCustomerID
	}
	return s.payments.Authorize(ctx, params)
}

// ParseID parses a numeric appointment id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// IsPlaceholderID reports whether raw is a client-side emergency
// placeholder such as "emergency-doctor-9".
func IsPlaceholderID(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "emergency-")
}

type access int

const (
	accessNone access = iota
	accessAdmin
	accessAssignedDoctor
	accessOwner
	accessOrphanDoctor
)

func accessFor(appt *Appointment, actor auth.Identity) access {
	switch {
	case actor.ID == 0:
		return accessNone
	case actor.IsAdmin():
		return accessAdmin
	case actor.IsDoctor() && appt.DoctorID != nil && *appt.DoctorID == actor.ID:
		return accessAssignedDoctor
	case appt.UserID == actor.ID:
		return accessOwner
	case actor.IsDoctor() && appt.DoctorID == nil:
		return accessOrphanDoctor
	}
	return accessNone
}

func (s *Service) load(ctx context.Context, id int64) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) releasePayment(ctx context.Context, appt *Appointment) {
	if err := s.payments.CancelAuthorization(ctx, *appt.PaymentIntentID); err != nil {
		log.Warn().
			Err(err).
			Int64("appointment_id", appt.ID).
			Str("payment_intent", *appt.PaymentIntentID).
			Msg("failed to cancel payment authorization")
	}
}

func cancellationNote(actor auth.Identity, reason string) string {
	note := "Cancelado por " + displayName(actor)
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	return note
}

func displayName(actor auth.Identity) string {
	switch {
	case actor.Name != "":
		return actor.Name
	case actor.Username != "":
		return actor.Username
	case actor.Email != "":
		return actor.Email
	}
	return fmt.Sprintf("user-%d", actor.ID)
}

func (s *Service) notifyParticipants(ctx context.Context, appt *Appointment, actorID int64, kind, title, message string) {
	s.notify(ctx, appt.UserID, appt.ID, kind, title, message)
	if appt.DoctorID != nil && *appt.DoctorID != appt.UserID && *appt.DoctorID != actorID {
		s.notify(ctx, *appt.DoctorID, appt.ID, kind, title, message)
	}
}

func (s *Service) notify(ctx context.Context, userID, appointmentID int64, kind, title, message string) {
	apptID := appointmentID
	n := Notification{
		UserID:        userID,
		AppointmentID: &apptID,
		Kind:          kind,
		Title:         title,
		Message:       message,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		log.Warn().Err(err).Int64("appointment_id", appointmentID).Str("kind", kind).Msg("failed to insert notification")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	metrics.AppointmentTransitions.WithLabelValues(eventType).Inc()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", eventType).Int64("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}

func (s *Service) span(ctx context.Context, name string, id int64) (context.Context, func(error)) {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	if id != 0 {
		span.SetAttributes(attribute.Int64("appointment.id", id))
	}
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
