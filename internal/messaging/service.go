// Package messaging abstracts the WhatsApp providers (whatsmeow, Twilio) and dispatches inbound messages.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// ErrServiceStopped is returned by sends after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// ErrUnsupported is returned for capabilities a provider does not offer.
var ErrUnsupported = errors.New("operation not supported by provider")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// InboundHandler receives every inbound message, including group messages and the bot's own messages.
type InboundHandler func(msg models.InboundMessage)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendMedia sends the media at mediaURL with an optional caption.
	SendMedia(ctx context.Context, to, mediaURL, caption string) error

	// DownloadMedia returns the media bytes attached to an inbound message.
	DownloadMedia(ctx context.Context, msg models.InboundMessage) ([]byte, error)

	// GroupName returns the display name of a group chat.
	GroupName(ctx context.Context, chat string) (string, error)

	// Subscribe registers an inbound handler and returns its id.
	Subscribe(handler InboundHandler) uint32

	// Unsubscribe removes a handler. It reports whether the id was registered.
	Unsubscribe(id uint32) bool

	// Start begins background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// canonicalPhone strips every non-digit and requires at least 6 digits.
func canonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// subscribers is the handler registry shared by the provider services.
type subscribers struct {
	mu       sync.RWMutex
	next     uint32
	handlers map[uint32]InboundHandler
}

func (s *subscribers) add(h InboundHandler) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[uint32]InboundHandler)
	}
	s.next++
	s.handlers[s.next] = h
	return s.next
}

func (s *subscribers) remove(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handlers[id]
	delete(s.handlers, id)
	return ok
}

func (s *subscribers) dispatch(msg models.InboundMessage) int {
	s.mu.RLock()
	handlers := make([]InboundHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
	return len(handlers)
}
