package alerter

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookSink POSTs a JSON payload to a configured URL, HMAC-signing the
// body so receivers can verify authenticity, grounded on notifier.py's
// _send_webhook (POST a JSON events array, timeout 10s) generalized with a
// shared-secret signature header.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewWebhookSink builds a WebhookSink with a 10s timeout client, matching
// notifier.py's requests.post(..., timeout=10).
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{URL: url, Secret: secret, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookSink) Name() string { return "webhook" }

type webhookEvent struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

type webhookBody struct {
	Source    string         `json:"source"`
	Timestamp int64          `json:"timestamp"`
	Events    []webhookEvent `json:"events"`
}

func (w *WebhookSink) Send(ctx context.Context, payload Payload) SinkStatus {
	body := webhookBody{Source: "coreflow", Timestamp: time.Now().Unix()}
	for _, obs := range payload.Observations {
		body.Events = append(body.Events, webhookEvent{Time: obs.Timestamp.Unix(), Message: obs.Summary})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return StatusPermanentError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(raw))
	if err != nil {
		return StatusPermanentError
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-Coreflow-Signature", sign(w.Secret, raw))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return StatusTransientError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return StatusOk
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return StatusTransientError
	default:
		return StatusPermanentError
	}
}

// sign computes a hex-encoded HMAC-SHA256 over body using secret. Uses
// crypto/hmac directly: no example repo in the corpus wires a third-party
// request-signing library, and this is a small, well-defined stdlib
// primitive rather than a hand-rolled cryptographic routine.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
