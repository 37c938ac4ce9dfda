package prefs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskpulse/pkg/logx"
)

func TestIsUnsubscribed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("email") != "a@example.com" || q.Get("category") != "task-reminders" || q.Get("organization_id") != "o1" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"unsubscribed": true}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.IsUnsubscribed(context.Background(), "a@example.com", "task-reminders", "o1")
	if err != nil {
		t.Fatalf("IsUnsubscribed: %v", err)
	}
	if !got {
		t.Fatal("want unsubscribed = true")
	}
}

func TestIsUnsubscribedServiceError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.IsUnsubscribed(context.Background(), "a@example.com", "x", "o1"); err == nil {
		t.Fatal("expected error on 500")
	}
}
