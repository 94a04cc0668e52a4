package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/whatsapp"
)

// maxOutboundMediaBytes caps media fetched for SendMedia.
const maxOutboundMediaBytes = 16 << 20

// WhatsAppService implements Service using the whatsmeow-based client.
type WhatsAppService struct {
	client     whatsapp.Messenger
	httpClient *http.Client
	subs       subscribers

	mu        sync.Mutex
	handlerID uint32
	started   bool
	stopped   bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping client.
func NewWhatsAppService(client whatsapp.Messenger) *WhatsAppService {
	return &WhatsAppService{client: client, httpClient: http.DefaultClient}
}

// ValidateAndCanonicalizeRecipient accepts a phone number or a full JID. JIDs are returned unchanged.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if strings.Contains(recipient, "@") {
		if _, err := whatsapp.ParseRecipient(recipient); err != nil {
			return "", err
		}
		return recipient, nil
	}
	canonical, err := canonicalPhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	if s.started {
		return nil
	}
	s.handlerID = s.client.AddEventHandler(s.handleEvent)
	s.started = true
	slog.Debug("WhatsAppService event handler registered", "handlerID", s.handlerID)
	return nil
}

// Stop removes the event handler. Later sends fail with ErrServiceStopped.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.started {
		s.client.RemoveEventHandler(s.handlerID)
	}
	s.stopped = true
	slog.Info("WhatsAppService stopped")
	return nil
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	slog.Debug("WhatsAppService message sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// SendMedia downloads mediaURL and sends it as an image.
func (s *WhatsAppService) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	data, contentType, err := s.fetch(ctx, mediaURL)
	if err != nil {
		slog.Error("WhatsAppService SendMedia fetch failed", "error", err, "url", mediaURL)
		return err
	}
	if err := s.client.SendImage(ctx, canonicalTo, data, contentType, caption); err != nil {
		slog.Error("WhatsAppService SendMedia error", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

func (s *WhatsAppService) fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media url: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("failed to fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOutboundMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (s *WhatsAppService) DownloadMedia(ctx context.Context, msg models.InboundMessage) ([]byte, error) {
	evt, ok := msg.Raw.(*events.Message)
	if !ok || evt == nil {
		return nil, fmt.Errorf("message %s carries no whatsapp event", msg.ID)
	}
	return s.client.Download(ctx, evt.Message)
}

func (s *WhatsAppService) GroupName(ctx context.Context, chat string) (string, error) {
	return s.client.GroupName(ctx, chat)
}

func (s *WhatsAppService) Subscribe(handler InboundHandler) uint32 {
	return s.subs.add(handler)
}

func (s *WhatsAppService) Unsubscribe(id uint32) bool {
	return s.subs.remove(id)
}

// handleEvent converts whatsmeow message events and fans them out to subscribers.
func (s *WhatsAppService) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if v.Message == nil {
			return
		}
		msg := whatsapp.ToInbound(v)
		n := s.subs.dispatch(msg)
		slog.Debug("WhatsAppService inbound message dispatched", "id", msg.ID, "kind", msg.Kind, "group", msg.IsGroup, "subscribers", n)
	case *events.Connected:
		slog.Info("WhatsAppService connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService disconnected")
	}
}
