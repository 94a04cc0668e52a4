package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotifierDisabled is returned when the endpoint for a notification is not configured.
var ErrNotifierDisabled = errors.New("notification endpoint not configured")

// Notifier delivers relay results to the external notification endpoints.
type Notifier interface {
	SendMessage(ctx context.Context, number, message string) error
	SendMedia(ctx context.Context, phoneNumber, message, mediaURL string) error
}

type messagePayload struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type mediaPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	MediaURL    string `json:"mediaUrl"`
}

// HTTPNotifier posts JSON payloads to the message and media endpoints.
type HTTPNotifier struct {
	client     *http.Client
	messageURL string
	mediaURL   string
}

// NotifierOption configures an HTTPNotifier.
type NotifierOption func(*HTTPNotifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *HTTPNotifier) {
		n.client = c
	}
}

// NewHTTPNotifier creates a notifier. Either URL may be empty to disable that kind of notification.
func NewHTTPNotifier(messageURL, mediaURL string, opts ...NotifierOption) *HTTPNotifier {
	n := &HTTPNotifier{
		client:     &http.Client{Timeout: 30 * time.Second},
		messageURL: messageURL,
		mediaURL:   mediaURL,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *HTTPNotifier) SendMessage(ctx context.Context, number, message string) error {
	return n.post(ctx, n.messageURL, messagePayload{Number: number, Message: message})
}

func (n *HTTPNotifier) SendMedia(ctx context.Context, phoneNumber, message, mediaURL string) error {
	return n.post(ctx, n.mediaURL, mediaPayload{PhoneNumber: phoneNumber, Message: message, MediaURL: mediaURL})
}

func (n *HTTPNotifier) post(ctx context.Context, url string, payload any) error {
	if url == "" {
		return ErrNotifierDisabled
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}
