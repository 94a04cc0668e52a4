package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	subs    subscribers
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient removes all non-numeric characters and requires at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalPhone(strings.TrimPrefix(recipient, "whatsapp:"))
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound messages arrive through WebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

func (s *TwilioService) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMedia(ctx, canonicalTo, mediaURL, caption)
}

func (s *TwilioService) DownloadMedia(ctx context.Context, msg models.InboundMessage) ([]byte, error) {
	if msg.MediaURL == "" {
		return nil, fmt.Errorf("message %s has no media", msg.ID)
	}
	return s.client.FetchMedia(ctx, msg.MediaURL)
}

// GroupName is unsupported: Twilio does not deliver WhatsApp group messages.
func (s *TwilioService) GroupName(ctx context.Context, chat string) (string, error) {
	return "", ErrUnsupported
}

func (s *TwilioService) Subscribe(handler InboundHandler) uint32 {
	return s.subs.add(handler)
}

func (s *TwilioService) Unsubscribe(id uint32) bool {
	return s.subs.remove(id)
}

// kindFromContentType maps a Twilio MediaContentType0 value to a message kind.
func kindFromContentType(contentType string) models.MessageKind {
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		return models.KindVoice
	case strings.HasPrefix(contentType, "image/"):
		return models.KindImage
	case strings.HasPrefix(contentType, "video/"):
		return models.KindVideo
	default:
		return models.KindDocument
	}
}

// WebhookHandler handles inbound Twilio webhook requests and dispatches them to subscribers.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(strings.TrimPrefix(r.FormValue("From"), "whatsapp:"), "+")
	body := r.FormValue("Body")
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if from == "" || (body == "" && numMedia == 0) {
		slog.Warn("Twilio webhook missing fields", "from", from, "numMedia", numMedia)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if s.isStopped() {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", from)
		http.Error(w, "Service stopped", http.StatusServiceUnavailable)
		return
	}

	msg := models.InboundMessage{
		ID:        r.FormValue("MessageSid"),
		From:      from,
		Chat:      from,
		Kind:      models.KindText,
		Text:      body,
		Timestamp: time.Now(),
	}
	if numMedia > 0 {
		msg.MediaURL = r.FormValue("MediaUrl0")
		msg.MimeType = r.FormValue("MediaContentType0")
		msg.Kind = kindFromContentType(msg.MimeType)
	}

	n := s.subs.dispatch(msg)
	slog.Info("TwilioService inbound message dispatched", "from", from, "kind", msg.Kind, "subscribers", n)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
