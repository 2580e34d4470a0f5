// Package payment authorizes, captures and releases consultation payments.
package payment

import "context"

// Intent is an authorized payment held at the provider until captured.
type Intent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
}

// AuthorizeParams describes a manual-capture authorization. Amount is in
// centavos.
type AuthorizeParams struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Client is the payment provider as seen by the appointment lifecycle.
type Client interface {
	Authorize(ctx context.Context, params AuthorizeParams) (*Intent, error)
	Capture(ctx context.Context, intentID string) error
	CancelAuthorization(ctx context.Context, intentID string) error
}
