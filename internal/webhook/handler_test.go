package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"whatsapp_portal_backend/internal/conversations/service"
	"whatsapp_portal_backend/platform/logger"
)

type fakeReconciler struct {
	calls   []service.DeliveryCallback
	matched bool
	err     error
}

func (f *fakeReconciler) ReconcileDelivery(_ context.Context, cb service.DeliveryCallback) (bool, error) {
	f.calls = append(f.calls, cb)
	return f.matched, f.err
}

type fakeTwilioConfig struct {
	sigToken string
}

func (c fakeTwilioConfig) GetTwilioAccountSID() string    { return "AC0000" }
func (c fakeTwilioConfig) GetTwilioAuthTokenREST() string { return "rest-token" }
func (c fakeTwilioConfig) GetTwilioAuthTokenSig() string  { return c.sigToken }
func (c fakeTwilioConfig) GetTwilioWhatsAppFrom() string  { return "whatsapp:+14155238886" }

func sign(token, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := requestURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookRouter(t *testing.T, reconciler *fakeReconciler, sigToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("development")
	m := &Module{conversations: reconciler, cfg: fakeTwilioConfig{sigToken: sigToken}, log: log}
	engine := gin.New()
	engine.POST("/api/v1/webhooks/twilio/status", m.verifySignature, m.Status)
	return engine
}

func postCallback(engine *gin.Engine, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "portal.example.com"
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestStatusCallbackAppliesDelivery(t *testing.T) {
	reconciler := &fakeReconciler{matched: true}
	engine := newWebhookRouter(t, reconciler, "sig-token")

	form := url.Values{}
	form.Set("MessageSid", "SM0001")
	form.Set("MessageStatus", "delivered")
	form.Set("To", "whatsapp:+5511999990000")

	sig := sign("sig-token", "http://portal.example.com/api/v1/webhooks/twilio/status", form)
	rec := postCallback(engine, form, sig)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(reconciler.calls) != 1 {
		t.Fatalf("reconciler calls = %d, want 1", len(reconciler.calls))
	}
	cb := reconciler.calls[0]
	if cb.ProviderSID != "SM0001" || cb.Status != "delivered" || cb.To != "whatsapp:+5511999990000" {
		t.Fatalf("unexpected callback payload: %+v", cb)
	}
}

func TestStatusCallbackRejectsBadSignature(t *testing.T) {
	reconciler := &fakeReconciler{}
	engine := newWebhookRouter(t, reconciler, "sig-token")

	form := url.Values{}
	form.Set("MessageSid", "SM0001")
	form.Set("MessageStatus", "delivered")

	rec := postCallback(engine, form, "not-a-real-signature")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(reconciler.calls) != 0 {
		t.Fatalf("reconciler called despite bad signature")
	}
}

func TestStatusCallbackRejectsMissingSignature(t *testing.T) {
	reconciler := &fakeReconciler{}
	engine := newWebhookRouter(t, reconciler, "sig-token")

	form := url.Values{}
	form.Set("MessageSid", "SM0001")
	form.Set("MessageStatus", "failed")

	rec := postCallback(engine, form, "")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestStatusCallbackHonorsForwardedHeaders(t *testing.T) {
	reconciler := &fakeReconciler{matched: true}
	engine := newWebhookRouter(t, reconciler, "sig-token")

	form := url.Values{}
	form.Set("MessageSid", "SM0002")
	form.Set("MessageStatus", "read")

	sig := sign("sig-token", "https://public.example.com/api/v1/webhooks/twilio/status", form)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "public.example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusCallbackUnknownSIDStillAcknowledged(t *testing.T) {
	reconciler := &fakeReconciler{matched: false}
	engine := newWebhookRouter(t, reconciler, "sig-token")

	form := url.Values{}
	form.Set("MessageSid", "SMunknown")
	form.Set("MessageStatus", "delivered")

	sig := sign("sig-token", "http://portal.example.com/api/v1/webhooks/twilio/status", form)
	rec := postCallback(engine, form, sig)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"matched":false`) {
		t.Fatalf("body = %s, want matched:false", rec.Body.String())
	}
}

func TestStatusCallbackSkipsValidationWithoutToken(t *testing.T) {
	reconciler := &fakeReconciler{matched: true}
	engine := newWebhookRouter(t, reconciler, "")

	form := url.Values{}
	form.Set("MessageSid", "SM0003")
	form.Set("MessageStatus", "sent")

	rec := postCallback(engine, form, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(reconciler.calls) != 1 {
		t.Fatalf("reconciler calls = %d, want 1", len(reconciler.calls))
	}
}
