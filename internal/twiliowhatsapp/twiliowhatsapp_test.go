package twiliowhatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.SendMedia(ctx, "12345", "https://example.com/a.jpeg", "foto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.SentMessages[0].Body)
	}
	if mock.SentMessages[1].MediaURL != "https://example.com/a.jpeg" {
		t.Errorf("unexpected media url %q", mock.SentMessages[1].MediaURL)
	}
}

func TestWhatsappAddress(t *testing.T) {
	tests := map[string]string{
		"34600111222":           "whatsapp:+34600111222",
		"+34600111222":          "whatsapp:+34600111222",
		"whatsapp:+34600111222": "whatsapp:+34600111222",
	}
	for in, want := range tests {
		if got := whatsappAddress(in); got != want {
			t.Errorf("whatsappAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithFromWhats("+1")); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+15550001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001" {
		t.Errorf("unexpected from %q", c.fromWhats)
	}
}

func TestFetchMedia_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := c.FetchMedia(context.Background(), srv.URL+"/Media/ME1")
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}
	if string(data) != "media-bytes" {
		t.Errorf("unexpected data %q", data)
	}

	c.authToken = "wrong"
	if _, err := c.FetchMedia(context.Background(), srv.URL); err == nil {
		t.Error("expected error on unauthorized response")
	}
}
