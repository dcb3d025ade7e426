package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Dispatcher delivers high-severity anomaly notifications. Delivery
// is fire-and-forget from the detector's point of view; a failed
// dispatch is logged by the caller and never rolls back detection.
type Dispatcher interface {
	FireAlert(ctx context.Context, instance, alertKey, title, message string) error
}

// WebhookDispatcher posts alerts as JSON to a configured endpoint
type WebhookDispatcher struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookDispatcher creates a webhook dispatcher
func NewWebhookDispatcher(url string, headers map[string]string) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Instance  string    `json:"instance"`
	AlertKey  string    `json:"alert_key"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// FireAlert posts the alert to the webhook URL
func (d *WebhookDispatcher) FireAlert(ctx context.Context, instance, alertKey, title, message string) error {
	if d.url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Instance:  instance,
		AlertKey:  alertKey,
		Title:     title,
		Message:   message,
		Source:    "dbpulse",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher writes alerts to the process log. Used when no
// webhook is configured so high-severity anomalies still surface.
type LogDispatcher struct{}

// FireAlert logs the alert
func (d *LogDispatcher) FireAlert(ctx context.Context, instance, alertKey, title, message string) error {
	log.Printf("alert [%s] %s: %s - %s", alertKey, instance, title, message)
	return nil
}
