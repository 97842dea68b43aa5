package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"academy/internal/model"
)

// Sink delivers one notification to the outside world.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// WebhookSink POSTs notifications as JSON, signed with HMAC-SHA256 over "<timestamp>.<body>".
type WebhookSink struct {
	URL    string
	Secret string
	HTTP   *http.Client
	now    func() time.Time
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Secret: secret,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Deliver posts n and treats any non-2xx answer as a failure.
func (w *WebhookSink) Deliver(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: encode notification failed: %w", err)
	}
	ts := strconv.FormatInt(w.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", ts)
	if w.Secret != "" {
		req.Header.Set("X-Signature", "sha256="+Sign(w.Secret, ts, body))
	}

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: delivery failed (%d): %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// LogSink writes notifications to the log. Used when no webhook is configured.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, n model.Notification) error {
	s.Log.Info().
		Str("notification", n.ID).
		Str("kind", n.Kind).
		Str("recipient", n.RecipientEmail).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}
