package pubsub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookBridgeDeliversSignedPayload(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("X-Loopd-Signature")
		if sig == "" {
			t.Errorf("missing signature header")
		}
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := New()
	defer reg.Close()

	bridge := NewWebhookBridge(time.Second)
	if _, err := bridge.Register(reg, WebhookSubscription{
		URL:     srv.URL,
		Secret:  "shh",
		Actions: []string{"order.created"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.Publish(Intent{Action: "order.created", What: 1})

	select {
	case p := <-received:
		if p.Action != "order.created" {
			t.Fatalf("Action = %q, want order.created", p.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func TestWebhookBridgeNonOKStatusLogsNotPanics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := New()
	defer reg.Close()

	bridge := NewWebhookBridge(time.Second)
	bridge.Register(reg, WebhookSubscription{URL: srv.URL, Actions: []string{"a"}})

	reg.Publish(Intent{Action: "a"})
	time.Sleep(50 * time.Millisecond) // delivery happens off the test goroutine; nothing to assert but absence of a panic
}
