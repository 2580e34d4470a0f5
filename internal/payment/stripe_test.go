package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stripe/stripe-go/v76"

	"github.com/vidasaude/telehealth-core/internal/apperr"
)

type recordedRequest struct {
	method      string
	path        string
	form        map[string]string
	idempotency string
}

func newStripeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*StripeClient, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			form:        form,
			idempotency: r.Header.Get("Idempotency-Key"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	c := NewStripeClient("sk_test_123", "BRL", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return c, &reqs
}

func TestAuthorizeCreatesManualCaptureIntent(t *testing.T) {
	c, reqs := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":15000,"currency":"brl","client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	})

	intent, err := c.Authorize(context.Background(), AuthorizeParams{
		Amount:         15000,
		CustomerID:     "cus_9",
		Description:    "Consulta",
		IdempotencyKey: "appt-7",
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" || intent.Amount != 15000 {
		t.Fatalf("intent = %+v", intent)
	}

	got := (*reqs)[0]
	if got.method != http.MethodPost || got.path != "/v1/payment_intents" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	want := map[string]string{
		"amount":         "15000",
		"currency":       "brl",
		"capture_method": "manual",
		"customer":       "cus_9",
		"description":    "Consulta",
	}
	for k, v := range want {
		if got.form[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, got.form[k], v)
		}
	}
	if got.idempotency != "appt-7" {
		t.Errorf("idempotency key = %q", got.idempotency)
	}
}

func TestAuthorizeGeneratesIdempotencyKey(t *testing.T) {
	c, reqs := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_1","amount":100,"status":"requires_payment_method"}`))
	})
	if _, err := c.Authorize(context.Background(), AuthorizeParams{Amount: 100}); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if (*reqs)[0].idempotency == "" {
		t.Fatal("expected a generated idempotency key")
	}
}

func TestAuthorizeRejectsNonPositiveAmount(t *testing.T) {
	c, reqs := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Authorize(context.Background(), AuthorizeParams{Amount: 0})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(*reqs) != 0 {
		t.Fatal("no request should reach the provider")
	}
}

func TestCapture(t *testing.T) {
	c, reqs := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	})
	if err := c.Capture(context.Background(), "pi_123"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if (*reqs)[0].path != "/v1/payment_intents/pi_123/capture" {
		t.Fatalf("path = %s", (*reqs)[0].path)
	}
}

func TestCaptureInvalidRequestIsConflict(t *testing.T) {
	c, _ := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"This PaymentIntent could not be captured because it has a status of canceled."}}`))
	})
	if err := c.Capture(context.Background(), "pi_123"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestCaptureServerErrorIsProviderUnavailable(t *testing.T) {
	c, _ := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})
	if err := c.Capture(context.Background(), "pi_123"); !apperr.Is(err, apperr.KindProviderUnavailable) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
}

func TestCancelAlreadyCanceledIsSuccess(t *testing.T) {
	c, reqs := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"You cannot cancel this PaymentIntent because it has a status of canceled."}}`))
	})
	if err := c.CancelAuthorization(context.Background(), "pi_123"); err != nil {
		t.Fatalf("CancelAuthorization: %v", err)
	}
	if (*reqs)[0].path != "/v1/payment_intents/pi_123/cancel" {
		t.Fatalf("path = %s", (*reqs)[0].path)
	}
}

func TestCancelSucceededIsConflict(t *testing.T) {
	c, _ := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"You cannot cancel this PaymentIntent because it has a status of succeeded."}}`))
	})
	if err := c.CancelAuthorization(context.Background(), "pi_123"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewStripeClient("", "", nil)
	if _, err := c.Authorize(context.Background(), AuthorizeParams{Amount: 100}); err != ErrNotConfigured {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if err := c.Capture(context.Background(), "pi"); err != ErrNotConfigured {
		t.Fatalf("err = %v", err)
	}
}
