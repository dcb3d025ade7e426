package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookDispatcher_FireAlert(t *testing.T) {
	var received webhookPayload
	var gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotHeader = r.Header.Get("X-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(server.URL, map[string]string{"X-Token": "secret"})
	err := d.FireAlert(context.Background(), "db1", "anomaly:db1:cpu", "CPU anomaly", "cpu is high")
	if err != nil {
		t.Fatalf("fire alert: %v", err)
	}

	if received.Instance != "db1" {
		t.Errorf("instance: got %s", received.Instance)
	}
	if received.AlertKey != "anomaly:db1:cpu" {
		t.Errorf("alert key: got %s", received.AlertKey)
	}
	if received.Title != "CPU anomaly" || received.Message != "cpu is high" {
		t.Errorf("title/message: got %q/%q", received.Title, received.Message)
	}
	if received.Source != "dbpulse" {
		t.Errorf("source: got %s", received.Source)
	}
	if gotHeader != "secret" {
		t.Errorf("custom header not sent: got %q", gotHeader)
	}
}

func TestWebhookDispatcher_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewWebhookDispatcher(server.URL, nil)
	if err := d.FireAlert(context.Background(), "db1", "k", "t", "m"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestWebhookDispatcher_EmptyURL(t *testing.T) {
	d := NewWebhookDispatcher("", nil)
	if err := d.FireAlert(context.Background(), "db1", "k", "t", "m"); err != nil {
		t.Errorf("empty url should be a no-op, got %v", err)
	}
}

func TestLogDispatcher(t *testing.T) {
	d := &LogDispatcher{}
	if err := d.FireAlert(context.Background(), "db1", "k", "t", "m"); err != nil {
		t.Errorf("log dispatcher should never fail, got %v", err)
	}
}
