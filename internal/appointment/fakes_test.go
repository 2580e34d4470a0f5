package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/payment"
	"github.com/vidasaude/telehealth-core/internal/video"
)

// memRepo mirrors the conditional-update semantics of PgRepository.
type memRepo struct {
	mu            sync.Mutex
	nextID        int64
	users         map[int64]*User
	appts         map[int64]*Appointment
	notifications []Notification
	events        []EventLog
	roomWrites    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID: 100,
		users:  make(map[int64]*User),
		appts:  make(map[int64]*Appointment),
	}
}

func (r *memRepo) addUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = &u
}

func (r *memRepo) put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[a.ID] = cloneAppointment(&a)
}

func (r *memRepo) snapshot(id int64) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil
	}
	return cloneAppointment(a)
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	if a.DoctorID != nil {
		v := *a.DoctorID
		c.DoctorID = &v
	}
	if a.RoomName != nil {
		v := *a.RoomName
		c.RoomName = &v
	}
	if a.RoomURL != nil {
		v := *a.RoomURL
		c.RoomURL = &v
	}
	if a.PaymentIntentID != nil {
		v := *a.PaymentIntentID
		c.PaymentIntentID = &v
	}
	if a.PaymentStatus != nil {
		v := *a.PaymentStatus
		c.PaymentStatus = &v
	}
	if a.Amount != nil {
		v := *a.Amount
		c.Amount = &v
	}
	return &c
}

func (r *memRepo) GetUserByID(_ context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if f.UserID != nil && a.UserID != *f.UserID {
			continue
		}
		if f.DoctorID != nil {
			mine := a.DoctorID != nil && *a.DoctorID == *f.DoctorID
			if !mine && !(f.IncludeUnassigned && a.DoctorID == nil) {
				continue
			}
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *cloneAppointment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ScheduledAt.After(out[j].ScheduledAt)
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a := &Appointment{
		ID:              r.nextID,
		UserID:          in.UserID,
		DoctorID:        in.DoctorID,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Status:          StatusScheduled,
		Type:            in.Type,
		PaymentIntentID: in.PaymentIntentID,
		PaymentStatus:   in.PaymentStatus,
		Amount:          in.Amount,
		Notes:           in.Notes,
	}
	r.appts[a.ID] = cloneAppointment(a)
	return cloneAppointment(a), nil
}

func (r *memRepo) update(id int64, guard func(*Appointment) bool, apply func(*Appointment)) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || !guard(a) {
		return nil, ErrNotApplied
	}
	apply(a)
	return cloneAppointment(a), nil
}

func (r *memRepo) AssignDoctorIfEmpty(_ context.Context, id, doctorID int64) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.DoctorID == nil },
		func(a *Appointment) { a.DoctorID = &doctorID })
}

func (r *memRepo) SetRoomIfEmpty(_ context.Context, id int64, roomName, roomURL string) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.RoomName == nil },
		func(a *Appointment) {
			r.roomWrites++
			a.RoomName = &roomName
			a.RoomURL = &roomURL
		})
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id int64, from, to Status) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) { a.Status = to })
}

func (r *memRepo) CancelAppointment(_ context.Context, id int64, note string) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.Status != StatusCancelled && !a.paymentCompleted() },
		func(a *Appointment) {
			a.Status = StatusCancelled
			if a.PaymentIntentID != nil {
				ps := PaymentCancelled
				a.PaymentStatus = &ps
			}
			if a.Notes == "" {
				a.Notes = note
			} else {
				a.Notes = strings.Join([]string{a.Notes, note}, "\n")
			}
		})
}

func (r *memRepo) CompleteAppointment(_ context.Context, id int64, captured bool) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.Status == StatusInProgress },
		func(a *Appointment) {
			a.Status = StatusCompleted
			if captured {
				ps := PaymentCompleted
				a.PaymentStatus = &ps
			}
		})
}

func (r *memRepo) DeleteAppointment(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if !a.deletable() {
		return ErrNotApplied
	}
	delete(r.appts, id)
	return nil
}

func (r *memRepo) FindOverdueInProgress(_ context.Context, now time.Time, grace time.Duration) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusInProgress && a.EndsAt().Add(grace).Before(now) {
			out = append(out, *cloneAppointment(a))
		}
	}
	return out, nil
}

func (r *memRepo) InsertNotification(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fakeRooms struct {
	mu        sync.Mutex
	ensured   map[string]int
	minted    []video.Participant
	deleted   []string
	ensureErr error
	mintErr   error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{ensured: make(map[string]int)}
}

func (f *fakeRooms) RoomURL(name string) string {
	return video.RoomURL("vidasaude", name)
}

func (f *fakeRooms) EnsureRoom(_ context.Context, name string, ttl time.Duration) (video.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return video.Room{}, f.ensureErr
	}
	f.ensured[name]++
	return video.Room{Name: name, URL: f.RoomURL(name), ExpiresAt: testNow.Add(ttl)}, nil
}

func (f *fakeRooms) MintToken(_ context.Context, name string, p video.Participant, kind video.SessionKind) (video.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return video.AccessToken{}, f.mintErr
	}
	f.minted = append(f.minted, p)
	return video.AccessToken{
		Token:     "tok-" + name,
		RoomName:  name,
		ExpiresAt: testNow.Add(kind.TokenTTL()),
		IsOwner:   p.Role == auth.RoleDoctor,
	}, nil
}

func (f *fakeRooms) DeleteRoom(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeRooms) ensuredNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n := range f.ensured {
		names = append(names, n)
	}
	return names
}

type fakePayments struct {
	mu         sync.Mutex
	cancelled  []string
	captured   []string
	authorized []paymentCall
	cancelErr  error
	captureErr error
}

type paymentCall struct {
	Amount     int64
	CustomerID string
}

func (f *fakePayments) Authorize(_ context.Context, p payment.AuthorizeParams) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = append(f.authorized, paymentCall{Amount: p.Amount, CustomerID: p.CustomerID})
	return &payment.Intent{ID: "pi_new", ClientSecret: "pi_new_secret", Amount: p.Amount}, nil
}

func (f *fakePayments) Capture(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captured = append(f.captured, intentID)
	return nil
}

func (f *fakePayments) CancelAuthorization(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, intentID)
	return f.cancelErr
}

// tickingClock advances a millisecond on every read so that concurrent
// callers observe distinct timestamps.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *tickingClock) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
