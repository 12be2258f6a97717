package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatsapp_portal_backend/platform/apperr"
	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"
	"whatsapp_portal_backend/platform/phone"
)

const apiBase = "https://api.twilio.com/2010-04-01"

// Transient provider failures (5xx, connection errors) are retried with a
// quadratic backoff, but only for sends that are safe to repeat: template
// dispatches and free-text sends carrying a client-supplied idempotency key.
const (
	sendMaxAttempts = 3
	sendRetryDelay  = 500 * time.Millisecond
)

// Client talks to the Twilio Messaging REST API over WhatsApp.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
	log        *logger.Logger
	retryDelay time.Duration
}

type apiMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func NewClient(cfg config.TwilioConfig, log *logger.Logger) *Client {
	if cfg.GetTwilioAccountSID() == "" {
		return nil
	}
	return &Client{
		accountSID: cfg.GetTwilioAccountSID(),
		authToken:  cfg.GetTwilioAuthTokenREST(),
		from:       cfg.GetTwilioWhatsAppFrom(),
		baseURL:    apiBase,
		http:       &http.Client{Timeout: 20 * time.Second},
		log:        log,
		retryDelay: sendRetryDelay,
	}
}

// Configured reports whether provider credentials are present. Unconfigured
// deployments can still serve reads and state transitions.
func (c *Client) Configured() bool {
	return c != nil && c.accountSID != ""
}

// SendText sends a free-form WhatsApp message. Only valid inside the 24-hour
// customer service window; Twilio rejects it otherwise. Transient failures
// are retried only when clientRequestID marks the send as idempotent.
func (c *Client) SendText(ctx context.Context, to, body, clientRequestID string) (string, string, error) {
	form := url.Values{}
	form.Set("To", phone.WhatsAppAddress(to))
	form.Set("From", c.from)
	form.Set("Body", body)
	return c.postMessage(ctx, form, clientRequestID != "")
}

// SendTemplate sends a pre-approved content template, which Twilio accepts
// regardless of the service window.
func (c *Client) SendTemplate(ctx context.Context, to, contentSID string, variables map[string]string) (string, string, error) {
	form := url.Values{}
	form.Set("To", phone.WhatsAppAddress(to))
	form.Set("From", c.from)
	form.Set("ContentSid", contentSID)
	if len(variables) > 0 {
		encoded, err := json.Marshal(variables)
		if err != nil {
			return "", "", fmt.Errorf("marshal template variables: %w", err)
		}
		form.Set("ContentVariables", string(encoded))
	}
	return c.postMessage(ctx, form, true)
}

func (c *Client) postMessage(ctx context.Context, form url.Values, retryable bool) (string, string, error) {
	if !c.Configured() {
		return "", "", apperr.Upstream("TWILIO_REQ", "messaging provider is not configured")
	}

	attempts := 1
	if retryable {
		attempts = sendMaxAttempts
	}

	var (
		sid, status string
		transient   bool
		err         error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		sid, status, transient, err = c.postMessageOnce(ctx, form)
		if err == nil || !transient || attempt == attempts {
			return sid, status, err
		}

		delay := time.Duration(attempt*attempt) * c.retryDelay
		c.log.Warn("provider send failed, retrying",
			"to", form.Get("To"), "attempt", attempt, "delay", delay.String())
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return sid, status, err
}

func (c *Client) postMessageOnce(ctx context.Context, form url.Values) (string, string, bool, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.ProviderError("send", form.Get("To"), "TWILIO_REQ", err.Error())
		return "", "", true, apperr.Upstream("TWILIO_REQ", "messaging provider unreachable")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", true, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		code := fmt.Sprintf("TWILIO_%d", resp.StatusCode)
		transient := resp.StatusCode >= http.StatusInternalServerError
		var apiErr apiError
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Message != "" {
			c.log.ProviderError("send", form.Get("To"), code, apiErr.Message)
			return "", "", transient, apperr.Upstream(code, apiErr.Message)
		}
		c.log.ProviderError("send", form.Get("To"), code, strings.TrimSpace(string(data)))
		return "", "", transient, apperr.Upstream(code, "messaging provider rejected the request")
	}

	var msg apiMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", "", false, fmt.Errorf("decode provider response: %w", err)
	}
	return msg.SID, msg.Status, false, nil
}

// FetchMedia downloads message media, following Twilio's redirect to the
// backing store, and returns the body stream with its content type.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) (io.ReadCloser, string, error) {
	if !c.Configured() {
		return nil, "", apperr.Upstream("TWILIO_REQ", "messaging provider is not configured")
	}
	if !strings.HasPrefix(mediaURL, "https://api.twilio.com/") {
		return nil, "", apperr.BadRequest("media url must point at the provider API")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", apperr.Upstream("TWILIO_REQ", "media fetch failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		return nil, "", apperr.Upstream(fmt.Sprintf("TWILIO_%d", resp.StatusCode), "media fetch rejected")
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
