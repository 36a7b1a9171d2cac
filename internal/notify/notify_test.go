package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookSendAlert(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	wh := NewWebhook("feed", server.URL, time.Second, nil)
	if err := wh.SendAlert(context.Background(), "socket lost"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}

	if got.Source != "feed" || got.Level != "alert" || got.Text != "socket lost" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookSendStatus(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	wh := NewWebhook("monitor", server.URL, time.Second, nil)
	if err := wh.SendStatus(context.Background(), "heartbeat"); err != nil {
		t.Fatalf("SendStatus: %v", err)
	}
	if got.Level != "status" {
		t.Errorf("level = %q, want status", got.Level)
	}
}

func TestWebhookServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	wh := NewWebhook("feed", server.URL, time.Second, nil)
	if err := wh.SendAlert(context.Background(), "boom"); err == nil {
		t.Error("SendAlert expected error on 502")
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if err := n.SendAlert(context.Background(), "x"); err != nil {
		t.Errorf("Nop.SendAlert: %v", err)
	}
	if err := n.SendStatus(context.Background(), "x"); err != nil {
		t.Errorf("Nop.SendStatus: %v", err)
	}
}
