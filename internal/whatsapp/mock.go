package whatsapp

import (
	"context"
	"sync"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// SentMessage records one send performed through MockClient.
type SentMessage struct {
	To       string
	Body     string
	Image    []byte
	MimeType string
}

// MockClient implements Messenger without a WhatsApp connection. Tests drive it with Emit.
type MockClient struct {
	mu         sync.Mutex
	sent       []SentMessage
	handlers   map[uint32]func(evt any)
	nextID     uint32
	SendErr    error
	Media      []byte
	MediaErr   error
	GroupNames map[string]string
}

// NewMockClient creates a MockClient with no handlers.
func NewMockClient() *MockClient {
	return &MockClient{handlers: make(map[uint32]func(evt any)), GroupNames: make(map[string]string)}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{To: to, Body: caption, Image: data, MimeType: mimeType})
	return nil
}

func (m *MockClient) Download(ctx context.Context, msg *waE2E.Message) ([]byte, error) {
	return m.Media, m.MediaErr
}

func (m *MockClient) GroupName(ctx context.Context, chat string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GroupNames[chat], nil
}

func (m *MockClient) AddEventHandler(handler func(evt any)) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.handlers[m.nextID] = handler
	return m.nextID
}

func (m *MockClient) RemoveEventHandler(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[id]
	delete(m.handlers, id)
	return ok
}

// Emit delivers evt to every registered handler.
func (m *MockClient) Emit(evt any) {
	m.mu.Lock()
	handlers := make([]func(any), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

// Sent returns a copy of everything sent so far.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
