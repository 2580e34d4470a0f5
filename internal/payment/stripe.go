package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/vidasaude/telehealth-core/internal/apperr"
	"github.com/vidasaude/telehealth-core/internal/metrics"
)

var ErrNotConfigured = apperr.New(apperr.KindInternal, "payment provider is not configured")

// StripeClient implements Client with Stripe PaymentIntents.
type StripeClient struct {
	api      *client.API
	currency string
}

var _ Client = (*StripeClient)(nil)

// NewStripeClient builds a client for secretKey. backends may be nil to use
// the default Stripe endpoints.
func NewStripeClient(secretKey, currency string, backends *stripe.Backends) *StripeClient {
	if currency == "" {
		currency = string(stripe.CurrencyBRL)
	}
	var api *client.API
	if secretKey != "" {
		api = client.New(secretKey, backends)
	}
	return &StripeClient{api: api, currency: strings.ToLower(currency)}
}

func (c *StripeClient) Authorize(ctx context.Context, p AuthorizeParams) (intent *Intent, err error) {
	defer observe("authorize", &err)
	if c.api == nil {
		return nil, ErrNotConfigured
	}
	if p.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	currency := p.Currency
	if currency == "" {
		currency = c.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	key := p.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	params.SetIdempotencyKey(key)
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify("authorize payment", err)
	}

	log.Info().
		Str("payment_intent", pi.ID).
		Int64("amount", pi.Amount).
		Str("currency", string(pi.Currency)).
		Msg("payment authorized")

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Status:       string(pi.Status),
	}, nil
}

func (c *StripeClient) Capture(ctx context.Context, intentID string) (err error) {
	defer observe("capture", &err)
	if c.api == nil {
		return ErrNotConfigured
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := c.api.PaymentIntents.Capture(intentID, params); err != nil {
		return classify("capture payment", err)
	}
	log.Info().Str("payment_intent", intentID).Msg("payment captured")
	return nil
}

// CancelAuthorization releases a held authorization. Intents that are
// already canceled are treated as released.
func (c *StripeClient) CancelAuthorization(ctx context.Context, intentID string) (err error) {
	defer observe("cancel", &err)
	if c.api == nil {
		return ErrNotConfigured
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := c.api.PaymentIntents.Cancel(intentID, params); err != nil {
		if alreadyCanceled(err) {
			return nil
		}
		return classify("cancel payment authorization", err)
	}
	log.Info().Str("payment_intent", intentID).Msg("payment authorization cancelled")
	return nil
}

func alreadyCanceled(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stripe.ErrorCodePaymentIntentUnexpectedState &&
		strings.Contains(se.Msg, "status of canceled")
}

// classify maps provider rejections of the request itself to conflicts and
// everything else to an unavailable provider.
func classify(msg string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeInvalidRequest {
		return apperr.Wrap(apperr.KindConflict, msg, err)
	}
	return apperr.ProviderUnavailable(msg, err)
}

func observe(op string, err *error) {
	metrics.PaymentProviderRequests.WithLabelValues(op, metrics.Outcome(*err)).Inc()
}
