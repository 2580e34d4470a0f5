package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vidasaude/telehealth-core/internal/apperr"
	"github.com/vidasaude/telehealth-core/internal/auth"
	"github.com/vidasaude/telehealth-core/internal/cache"
	"github.com/vidasaude/telehealth-core/internal/clock"
	"github.com/vidasaude/telehealth-core/internal/metrics"
	"github.com/vidasaude/telehealth-core/internal/retry"
	"github.com/vidasaude/telehealth-core/internal/telemetry"
)

const defaultConfirmDelay = 5 * time.Second

// Options configures a Provisioner.
type Options struct {
	// Domain is the provider tenant, e.g. "vidasaude" for vidasaude.daily.co.
	Domain string
	// ConfirmDelay is the first propagation wait after creating a room. The
	// second wait is twice as long.
	ConfirmDelay time.Duration
	Clock        clock.Clock
	// Cache holds room descriptors until the room expires. Optional.
	Cache cache.Cache
}

// Provisioner makes sure rooms exist at the provider and mints tokens for
// them. Room creation at the provider is not immediately consistent, so a
// create is followed by a bounded visibility check that never fails the
// caller.
type Provisioner struct {
	provider Provider
	cache    cache.Cache
	clock    clock.Clock
	domain   string

	confirm    retry.Policy
	propagate  time.Duration
	mintPolicy retry.Policy
}

func NewProvisioner(provider Provider, opts Options) *Provisioner {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	delay := opts.ConfirmDelay
	if delay <= 0 {
		delay = defaultConfirmDelay
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewMemoryCache(clk.Now)
	}

	return &Provisioner{
		provider: provider,
		cache:    c,
		clock:    clk,
		domain:   opts.Domain,
		confirm: retry.Policy{
			MaxAttempts: 2,
			NewBackOff:  retry.Steps(delay, 2*delay),
			Clock:       clk,
		},
		propagate:  delay,
		mintPolicy: retry.Policy{MaxAttempts: 2, Clock: clk},
	}
}

// RoomURL returns the canonical URL for an already sanitized room name.
func (p *Provisioner) RoomURL(name string) string {
	return RoomURL(p.domain, name)
}

// EnsureRoom guarantees the room exists and returns its descriptor. It is
// idempotent and never creates a room twice for the same name.
func (p *Provisioner) EnsureRoom(ctx context.Context, name string, ttl time.Duration) (Room, error) {
	name, err := SanitizeRoomName(name)
	if err != nil {
		return Room{}, err
	}

	if room, ok := p.cachedRoom(ctx, name); ok {
		metrics.RoomProvisioning.WithLabelValues(string(StateCached)).Inc()
		return room, nil
	}
	return p.ensure(ctx, name, ttl)
}

func (p *Provisioner) ensure(ctx context.Context, name string, ttl time.Duration) (room Room, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "video.EnsureRoom")
	span.SetAttributes(attribute.String("room.name", name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("room.state", string(room.State)))
			metrics.RoomProvisioning.WithLabelValues(string(room.State)).Inc()
		}
		span.End()
	}()

	existing, err := p.provider.GetRoom(ctx, name)
	switch {
	case err == nil:
		room = p.describe(name, existing.ExpiresAt, StateExists)
		p.storeRoom(ctx, room)
		return room, nil
	case errors.Is(err, ErrMissingAPIKey):
		return Room{}, err
	case !errors.Is(err, ErrRoomNotFound):
		return Room{}, apperr.ProviderUnavailable("check video room", err)
	}

	expiresAt := p.clock.Now().Add(ttl)
	created, err := p.provider.CreateRoom(ctx, CreateRoomRequest{
		Name:              name,
		ExpiresAt:         expiresAt,
		EnableChat:        true,
		EnableScreenshare: true,
		EnableKnocking:    false,
	})
	switch {
	case errors.Is(err, ErrRoomExists):
		// A concurrent caller created it first.
		room = p.describe(name, expiresAt, StateExists)
		p.storeRoom(ctx, room)
		return room, nil
	case errors.Is(err, ErrMissingAPIKey):
		return Room{}, err
	case err != nil:
		return Room{}, apperr.ProviderUnavailable("create video room", err)
	}
	if !created.ExpiresAt.IsZero() {
		expiresAt = created.ExpiresAt
	}

	state := p.confirmVisible(ctx, name)
	room = p.describe(name, expiresAt, state)
	p.storeRoom(ctx, room)

	log.Info().
		Str("room", name).
		Str("state", string(state)).
		Time("expires_at", expiresAt).
		Msg("video room created")

	return room, nil
}

// confirmVisible polls the provider until the new room shows up. The
// waits are detached from caller cancellation and errors only downgrade
// the result to StateAssumedVisible.
func (p *Provisioner) confirmVisible(ctx context.Context, name string) ProvisionState {
	waitCtx := context.WithoutCancel(ctx)
	err := retry.Poll(waitCtx, p.confirm, func(ctx context.Context) (bool, error) {
		_, err := p.provider.GetRoom(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrRoomNotFound) {
				log.Debug().Err(err).Str("room", name).Msg("room visibility check failed")
			}
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		log.Warn().Str("room", name).Msg("room not yet visible at provider, proceeding")
		return StateAssumedVisible
	}
	return StateConfirmedVisible
}

// MintToken ensures the room exists and mints a token for participant.
// A failed mint is retried once after re-asserting the room and waiting
// for propagation.
func (p *Provisioner) MintToken(ctx context.Context, name string, participant Participant, kind SessionKind) (tok AccessToken, err error) {
	name, err = SanitizeRoomName(name)
	if err != nil {
		return AccessToken{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "video.MintToken")
	span.SetAttributes(
		attribute.String("room.name", name),
		attribute.Int64("participant.id", participant.UserID),
		attribute.String("participant.role", string(participant.Role)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ttl := kind.TokenTTL()
	if _, err := p.EnsureRoom(ctx, name, ttl); err != nil {
		return AccessToken{}, err
	}

	req := TokenRequest{
		RoomName:  name,
		UserID:    strconv.FormatInt(participant.UserID, 10),
		UserName:  participant.Name,
		ExpiresAt: p.clock.Now().Add(ttl),
		IsOwner:   participant.Role == auth.RoleDoctor,
	}

	var token string
	err = retry.Do(ctx, p.mintPolicy, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			if _, err := p.ensure(ctx, name, ttl); err != nil {
				if errors.Is(err, ErrMissingAPIKey) {
					return retry.Permanent(err)
				}
				return err
			}
			if err := p.clock.Sleep(context.WithoutCancel(ctx), p.propagate); err != nil {
				return err
			}
		}

		t, err := p.provider.CreateMeetingToken(ctx, req)
		if errors.Is(err, ErrMissingAPIKey) {
			return retry.Permanent(err)
		}
		if err != nil {
			log.Warn().Err(err).Str("room", name).Int("attempt", attempt+1).Msg("meeting token request failed")
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMissingAPIKey) {
			return AccessToken{}, err
		}
		return AccessToken{}, apperr.ProviderUnavailable("mint meeting token", err)
	}

	return AccessToken{
		Token:     token,
		RoomName:  name,
		ExpiresAt: req.ExpiresAt,
		IsOwner:   req.IsOwner,
	}, nil
}

// DeleteRoom removes a room at the provider. Unknown rooms are ignored.
func (p *Provisioner) DeleteRoom(ctx context.Context, name string) error {
	name, err := SanitizeRoomName(name)
	if err != nil {
		return err
	}
	if err := p.cache.Delete(ctx, roomCacheKey(name)); err != nil {
		log.Debug().Err(err).Str("room", name).Msg("room cache delete failed")
	}
	if err := p.provider.DeleteRoom(ctx, name); err != nil && !errors.Is(err, ErrRoomNotFound) {
		if errors.Is(err, ErrMissingAPIKey) {
			return err
		}
		return apperr.ProviderUnavailable("delete video room", err)
	}
	return nil
}

func (p *Provisioner) describe(name string, expiresAt time.Time, state ProvisionState) Room {
	return Room{
		Name:      name,
		URL:       p.RoomURL(name),
		ExpiresAt: expiresAt,
		State:     state,
	}
}

func roomCacheKey(name string) string {
	return fmt.Sprintf("room:%s", name)
}

func (p *Provisioner) cachedRoom(ctx context.Context, name string) (Room, bool) {
	raw, err := p.cache.Get(ctx, roomCacheKey(name))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Debug().Err(err).Str("room", name).Msg("room cache read failed")
		}
		return Room{}, false
	}
	var room Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return Room{}, false
	}
	if !room.ExpiresAt.IsZero() && !p.clock.Now().Before(room.ExpiresAt) {
		return Room{}, false
	}
	room.State = StateCached
	return room, true
}

func (p *Provisioner) storeRoom(ctx context.Context, room Room) {
	ttl := time.Hour
	if !room.ExpiresAt.IsZero() {
		ttl = room.ExpiresAt.Sub(p.clock.Now())
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(room)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, roomCacheKey(room.Name), data, ttl); err != nil {
		log.Debug().Err(err).Str("room", room.Name).Msg("room cache write failed")
	}
}
