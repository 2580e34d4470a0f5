package video

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vidasaude/telehealth-core/internal/apperr"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/clock"
)

// fakeProvider is an in-memory provider. A created room becomes visible
// to GetRoom only after hiddenReads further lookups.
type fakeProvider struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	hidden      map[string]int
	hiddenReads int

	creates    int
	gets       int
	tokenCalls int
	tokenErrs  []error
	createErr  error
	getErr     error
	lastToken  TokenRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{rooms: make(map[string]*Room), hidden: make(map[string]int)}
}

func (f *fakeProvider) GetRoom(_ context.Context, name string) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	room, ok := f.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if f.hidden[name] > 0 {
		f.hidden[name]--
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (f *fakeProvider) CreateRoom(_ context.Context, req CreateRoomRequest) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.rooms[req.Name]; ok {
		return nil, ErrRoomExists
	}
	f.creates++
	room := &Room{Name: req.Name, URL: "https://api-host/" + req.Name, ExpiresAt: req.ExpiresAt}
	f.rooms[req.Name] = room
	f.hidden[req.Name] = f.hiddenReads
	cp := *room
	return &cp, nil
}

func (f *fakeProvider) CreateMeetingToken(_ context.Context, req TokenRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	f.lastToken = req
	if len(f.tokenErrs) > 0 {
		err := f.tokenErrs[0]
		f.tokenErrs = f.tokenErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "token-for-" + req.UserID, nil
}

func (f *fakeProvider) DeleteRoom(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[name]; !ok {
		return ErrRoomNotFound
	}
	delete(f.rooms, name)
	return nil
}

var start = time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)

func newTestProvisioner(p Provider) (*Provisioner, *clock.Managed) {
	clk := clock.NewManaged(start)
	return NewProvisioner(p, Options{Domain: "vidasaude", Clock: clk}), clk
}

func TestSanitizeRoomName(t *testing.T) {
	cases := map[string]string{
		"appointment-42-1736517600000": "appointment-42-1736517600000",
		"Appointment_42 Room":          "appointment-42-room",
		"  emergency/doctor:9 ":        "emergency-doctor-9",
	}
	for in, want := range cases {
		got, err := SanitizeRoomName(in)
		if err != nil || got != want {
			t.Errorf("SanitizeRoomName(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := SanitizeRoomName("***"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRoomURL(t *testing.T) {
	if got := RoomURL("vidasaude", "a-1"); got != "https://vidasaude.daily.co/a-1" {
		t.Fatalf("RoomURL = %q", got)
	}
	if got := RoomURL("https://video.vidasaude.com.br/", "a-1"); got != "https://video.vidasaude.com.br/a-1" {
		t.Fatalf("RoomURL = %q", got)
	}
}

func TestEnsureRoomExisting(t *testing.T) {
	fp := newFakeProvider()
	fp.rooms["appointment-1"] = &Room{Name: "appointment-1", URL: "https://other/appointment-1"}
	p, clk := newTestProvisioner(fp)

	room, err := p.EnsureRoom(context.Background(), "appointment-1", time.Hour)
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if room.URL != "https://vidasaude.daily.co/appointment-1" {
		t.Fatalf("url = %q, want canonical form", room.URL)
	}
	if room.State != StateExists {
		t.Fatalf("state = %s", room.State)
	}
	if fp.creates != 0 || len(clk.Sleeps()) != 0 {
		t.Fatalf("creates = %d sleeps = %v", fp.creates, clk.Sleeps())
	}
}

func TestEnsureRoomCreatesAndConfirms(t *testing.T) {
	fp := newFakeProvider()
	p, clk := newTestProvisioner(fp)

	room, err := p.EnsureRoom(context.Background(), "appointment-42-1", 90*time.Minute)
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if room.State != StateConfirmedVisible {
		t.Fatalf("state = %s", room.State)
	}
	if !room.ExpiresAt.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("expires = %s", room.ExpiresAt)
	}
	if got := clk.Sleeps(); len(got) != 1 || got[0] != 5*time.Second {
		t.Fatalf("sleeps = %v, want [5s]", got)
	}
}

func TestEnsureRoomAssumesVisibleAfterBudget(t *testing.T) {
	fp := newFakeProvider()
	fp.hiddenReads = 10
	p, clk := newTestProvisioner(fp)

	room, err := p.EnsureRoom(context.Background(), "appointment-7-1", time.Hour)
	if err != nil {
		t.Fatalf("EnsureRoom must not fail on confirmation: %v", err)
	}
	if room.State != StateAssumedVisible {
		t.Fatalf("state = %s", room.State)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 10*time.Second {
		t.Fatalf("sleeps = %v, want [5s 10s]", sleeps)
	}
}

func TestEnsureRoomIdempotent(t *testing.T) {
	fp := newFakeProvider()
	p, _ := newTestProvisioner(fp)
	ctx := context.Background()

	first, err := p.EnsureRoom(ctx, "appointment-42-1", time.Hour)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := p.EnsureRoom(ctx, "appointment-42-1", time.Hour)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Name != second.Name || first.URL != second.URL {
		t.Fatalf("descriptors differ: %+v vs %+v", first, second)
	}
	if fp.creates != 1 {
		t.Fatalf("creates = %d, want 1", fp.creates)
	}

	// Without the cache the provider lookup still finds the room.
	fresh := NewProvisioner(fp, Options{Domain: "vidasaude", Clock: clock.NewManaged(start)})
	third, err := fresh.EnsureRoom(ctx, "appointment-42-1", time.Hour)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.URL != first.URL || fp.creates != 1 {
		t.Fatalf("third = %+v creates = %d", third, fp.creates)
	}
}

func TestEnsureRoomCreateRace(t *testing.T) {
	fp := newFakeProvider()
	fp.createErr = ErrRoomExists
	p, _ := newTestProvisioner(fp)

	room, err := p.EnsureRoom(context.Background(), "appointment-1", time.Hour)
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if room.State != StateExists {
		t.Fatalf("state = %s", room.State)
	}
}

func TestEnsureRoomCreateFailure(t *testing.T) {
	fp := newFakeProvider()
	fp.createErr = errors.New("503 service unavailable")
	p, _ := newTestProvisioner(fp)

	_, err := p.EnsureRoom(context.Background(), "appointment-1", time.Hour)
	if !apperr.Is(err, apperr.KindProviderUnavailable) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
}

func TestMintTokenOwnerFlag(t *testing.T) {
	fp := newFakeProvider()
	p, _ := newTestProvisioner(fp)
	ctx := context.Background()

	doctor, err := p.MintToken(ctx, "appointment-42-1", Participant{UserID: 3, Name: "Dr. Paulo", Role: auth.RoleDoctor}, SessionStandard)
	if err != nil {
		t.Fatalf("MintToken doctor: %v", err)
	}
	if !doctor.IsOwner || doctor.Token != "token-for-3" {
		t.Fatalf("doctor token = %+v", doctor)
	}
	if !doctor.ExpiresAt.Equal(fp.lastToken.ExpiresAt) {
		t.Fatalf("expiry mismatch")
	}

	patient, err := p.MintToken(ctx, "appointment-42-1", Participant{UserID: 7, Name: "Ana", Role: auth.RolePatient}, SessionEmergency)
	if err != nil {
		t.Fatalf("MintToken patient: %v", err)
	}
	if patient.IsOwner {
		t.Fatal("patient must not be owner")
	}
	if fp.lastToken.IsOwner {
		t.Fatal("provider request must carry is_owner=false")
	}
	if fp.creates != 1 {
		t.Fatalf("creates = %d, want 1", fp.creates)
	}
}

func TestMintTokenCreatesMissingRoom(t *testing.T) {
	fp := newFakeProvider()
	p, _ := newTestProvisioner(fp)

	if _, err := p.MintToken(context.Background(), "never-created", Participant{UserID: 7, Role: auth.RolePatient}, SessionStandard); err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if _, ok := fp.rooms["never-created"]; !ok {
		t.Fatal("room should have been created")
	}
}

func TestMintTokenRetriesOnce(t *testing.T) {
	fp := newFakeProvider()
	fp.tokenErrs = []error{errors.New("room not ready"), nil}
	p, clk := newTestProvisioner(fp)

	tok, err := p.MintToken(context.Background(), "appointment-1", Participant{UserID: 7, Role: auth.RolePatient}, SessionStandard)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if tok.Token == "" || fp.tokenCalls != 2 {
		t.Fatalf("token = %+v calls = %d", tok, fp.tokenCalls)
	}
	sleeps := clk.Sleeps()
	if sleeps[len(sleeps)-1] != 5*time.Second {
		t.Fatalf("sleeps = %v, want trailing propagation wait", sleeps)
	}
}

func TestMintTokenFailsAfterRetry(t *testing.T) {
	fp := newFakeProvider()
	fp.tokenErrs = []error{errors.New("boom"), errors.New("boom again")}
	p, _ := newTestProvisioner(fp)

	_, err := p.MintToken(context.Background(), "appointment-1", Participant{UserID: 7, Role: auth.RolePatient}, SessionStandard)
	if !apperr.Is(err, apperr.KindProviderUnavailable) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
	if fp.tokenCalls != 2 {
		t.Fatalf("token calls = %d, want 2", fp.tokenCalls)
	}
}

func TestMintTokenMissingAPIKeyNotRetried(t *testing.T) {
	fp := newFakeProvider()
	fp.rooms["appointment-1"] = &Room{Name: "appointment-1"}
	fp.tokenErrs = []error{ErrMissingAPIKey}
	p, clk := newTestProvisioner(fp)

	_, err := p.MintToken(context.Background(), "appointment-1", Participant{UserID: 7, Role: auth.RolePatient}, SessionStandard)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
	if fp.tokenCalls != 1 || len(clk.Sleeps()) != 0 {
		t.Fatalf("calls = %d sleeps = %v", fp.tokenCalls, clk.Sleeps())
	}
}

func TestEnsureRoomMissingAPIKey(t *testing.T) {
	fp := newFakeProvider()
	fp.getErr = ErrMissingAPIKey
	p, _ := newTestProvisioner(fp)

	if _, err := p.EnsureRoom(context.Background(), "appointment-1", time.Hour); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteRoom(t *testing.T) {
	fp := newFakeProvider()
	p, _ := newTestProvisioner(fp)
	ctx := context.Background()

	if _, err := p.EnsureRoom(ctx, "emergency-room-1", time.Hour); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if err := p.DeleteRoom(ctx, "emergency-room-1"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if err := p.DeleteRoom(ctx, "emergency-room-1"); err != nil {
		t.Fatalf("second DeleteRoom should ignore not found: %v", err)
	}
	if _, err := p.EnsureRoom(ctx, "emergency-room-1", time.Hour); err != nil {
		t.Fatalf("EnsureRoom after delete: %v", err)
	}
	if fp.creates != 2 {
		t.Fatalf("creates = %d, want 2 after cache eviction", fp.creates)
	}
}
