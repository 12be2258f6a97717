package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/logger"
)

func testClient(baseURL string) *Client {
	return &Client{
		accountSID: "AC123",
		authToken:  "token",
		from:       "whatsapp:+5511888880000",
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 5 * time.Second},
		log:        logger.New("development"),
		retryDelay: time.Millisecond,
	}
}

func TestSendTemplateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("ContentSid"); got != "HX_test" {
			t.Fatalf("expected ContentSid HX_test, got %q", got)
		}
		if got := r.PostFormValue("To"); got != "whatsapp:+5511999990000" {
			t.Fatalf("unexpected To: %q", got)
		}
		if _, _, ok := r.BasicAuth(); !ok {
			t.Fatalf("expected basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid": "SM42", "status": "queued"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	sid, status, err := c.SendTemplate(context.Background(), "+5511999990000", "HX_test", map[string]string{"1": "Maria"})
	if err != nil {
		t.Fatalf("send template: %v", err)
	}
	if sid != "SM42" || status != "queued" {
		t.Fatalf("unexpected result %s/%s", sid, status)
	}
}

func TestSendTextProviderErrorMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": 63016, "message": "outside the allowed window", "status": 400}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, _, err := c.SendText(context.Background(), "+5511999990000", "oi", "")
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	appErr := err.(*apperr.Error)
	if appErr.WireCode() != "TWILIO_400" {
		t.Fatalf("expected TWILIO_400, got %s", appErr.WireCode())
	}
	if appErr.HTTPStatus() != http.StatusBadGateway {
		t.Fatalf("provider failures must map to 502, got %d", appErr.HTTPStatus())
	}
}

func TestSendTemplateRetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sid": "SM43", "status": "queued"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	sid, _, err := c.SendTemplate(context.Background(), "+5511999990000", "HX_test", nil)
	if err != nil {
		t.Fatalf("send template: %v", err)
	}
	if sid != "SM43" || calls != 2 {
		t.Fatalf("expected one retry then success, got sid=%s calls=%d", sid, calls)
	}
}

func TestSendTextRetriesOnlyWithIdempotencyKey(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, _, err := c.SendText(context.Background(), "+5511999990000", "oi", ""); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("text send without a key must not retry, got %d calls", calls)
	}

	calls = 0
	if _, _, err := c.SendText(context.Background(), "+5511999990000", "oi", "c0ffee"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != sendMaxAttempts {
		t.Fatalf("keyed text send should use all attempts, got %d calls", calls)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": 21211, "message": "invalid number", "status": 400}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if _, _, err := c.SendTemplate(context.Background(), "+5511999990000", "HX_test", nil); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("4xx responses must not be retried, got %d calls", calls)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	var c *Client
	if c.Configured() {
		t.Fatalf("nil client must not report configured")
	}
}
