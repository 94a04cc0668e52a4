package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPNotifier_Payloads(t *testing.T) {
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		body["path"] = r.URL.Path
		got = append(got, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL+"/message", srv.URL+"/media")
	if err := n.SendMessage(context.Background(), "34600111222", "hola"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := n.SendMedia(context.Background(), "34600111222", "", "https://bucket/img.jpeg"); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0]["path"] != "/message" || got[0]["number"] != "34600111222" || got[0]["message"] != "hola" {
		t.Errorf("unexpected message payload %v", got[0])
	}
	if got[1]["path"] != "/media" || got[1]["phoneNumber"] != "34600111222" || got[1]["mediaUrl"] != "https://bucket/img.jpeg" {
		t.Errorf("unexpected media payload %v", got[1])
	}
}

func TestHTTPNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "número inválido", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPNotifier(srv.URL, "").SendMessage(context.Background(), "1", "x")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "número inválido") {
		t.Errorf("expected status and body in error, got %v", err)
	}
}

func TestHTTPNotifier_Disabled(t *testing.T) {
	n := NewHTTPNotifier("", "")
	if err := n.SendMessage(context.Background(), "1", "x"); !errors.Is(err, ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled, got %v", err)
	}
	if err := n.SendMedia(context.Background(), "1", "", "u"); !errors.Is(err, ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled, got %v", err)
	}
}
