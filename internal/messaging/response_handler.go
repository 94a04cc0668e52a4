package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// VoiceFailureMessage is sent when a voice note cannot be turned into text.
const VoiceFailureMessage = "No he podido procesar tu mensaje de voz. ¿Puedes escribirlo?"

// ResponseAction processes a direct message. It receives the sender's canonical
// phone number, the normalised text and the unix timestamp, and reports whether
// it handled the message.
type ResponseAction func(ctx context.Context, from, text string, timestamp int64) (handled bool, err error)

// Normalizer turns an inbound message into text. ok=false means the content could not be understood.
type Normalizer interface {
	Normalize(ctx context.Context, msg models.InboundMessage) (text string, ok bool)
}

type namedAction struct {
	name   string
	action ResponseAction
}

// ResponseHandler dispatches direct messages through an ordered chain of actions.
// Each message runs on its own goroutine.
type ResponseHandler struct {
	msgService Service
	normalizer Normalizer
	dedup      store.DedupStore

	mu             sync.RWMutex
	actions        []namedAction
	defaultMessage string

	subID uint32
	ctx   context.Context
	wg    sync.WaitGroup
}

// NewResponseHandler creates a ResponseHandler. dedup may be nil to disable redelivery filtering.
func NewResponseHandler(msgService Service, normalizer Normalizer, dedup store.DedupStore) *ResponseHandler {
	return &ResponseHandler{
		msgService: msgService,
		normalizer: normalizer,
		dedup:      dedup,
	}
}

// AddAction appends an action to the chain. Actions run in registration order until one handles the message.
func (rh *ResponseHandler) AddAction(name string, action ResponseAction) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.actions = append(rh.actions, namedAction{name: name, action: action})
	slog.Debug("ResponseHandler action registered", "name", name, "position", len(rh.actions))
}

// SetDefaultMessage sets the reply sent when no action handles a message. Empty disables it.
func (rh *ResponseHandler) SetDefaultMessage(message string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.defaultMessage = message
}

// GetDefaultMessage returns the current default message.
func (rh *ResponseHandler) GetDefaultMessage() string {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	return rh.defaultMessage
}

// Start subscribes to the messaging service. ctx bounds every message processed.
func (rh *ResponseHandler) Start(ctx context.Context) {
	rh.ctx = ctx
	rh.subID = rh.msgService.Subscribe(rh.handleInbound)
	slog.Info("ResponseHandler started", "subscription", rh.subID)
}

// Stop unsubscribes and waits for in-flight messages to finish.
func (rh *ResponseHandler) Stop() {
	rh.msgService.Unsubscribe(rh.subID)
	rh.wg.Wait()
	slog.Info("ResponseHandler stopped")
}

func (rh *ResponseHandler) handleInbound(msg models.InboundMessage) {
	if msg.IsGroup || msg.FromMe {
		return
	}
	if rh.dedup != nil && msg.ID != "" {
		fresh, err := rh.dedup.RecordInbound(msg.ID, msg.From)
		if err != nil {
			slog.Warn("ResponseHandler dedup check failed, processing anyway", "error", err, "id", msg.ID)
		} else if !fresh {
			slog.Info("ResponseHandler skipping duplicate message", "id", msg.ID, "from", msg.From)
			return
		}
	}
	ctx := rh.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		if err := rh.ProcessMessage(ctx, msg); err != nil {
			slog.Error("ResponseHandler failed to process message", "error", err, "from", msg.From, "id", msg.ID)
		}
		if rh.dedup != nil && msg.ID != "" {
			if err := rh.dedup.MarkProcessed(msg.ID); err != nil {
				slog.Warn("ResponseHandler MarkProcessed failed", "error", err, "id", msg.ID)
			}
		}
	}()
}

// ProcessMessage normalises msg and runs it through the action chain.
func (rh *ResponseHandler) ProcessMessage(ctx context.Context, msg models.InboundMessage) error {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	text, ok := rh.normalizer.Normalize(ctx, msg)
	if !ok {
		slog.Info("ResponseHandler could not normalise message", "from", from, "kind", msg.Kind)
		if err := rh.msgService.SendMessage(ctx, from, VoiceFailureMessage); err != nil {
			return fmt.Errorf("failed to send voice failure notice: %w", err)
		}
		return nil
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("ResponseHandler dropping empty message", "from", from, "kind", msg.Kind)
		return nil
	}

	rh.mu.RLock()
	actions := append([]namedAction(nil), rh.actions...)
	defaultMessage := rh.defaultMessage
	rh.mu.RUnlock()

	ts := msg.Timestamp.Unix()
	for _, a := range actions {
		handled, err := a.action(ctx, from, text, ts)
		if err != nil {
			slog.Error("ResponseHandler action failed", "action", a.name, "error", err, "from", from)
			continue
		}
		if handled {
			slog.Debug("ResponseHandler message handled", "action", a.name, "from", from)
			return nil
		}
	}

	if defaultMessage == "" {
		slog.Debug("ResponseHandler message not handled", "from", from)
		return nil
	}
	if err := rh.msgService.SendMessage(ctx, from, defaultMessage); err != nil {
		return fmt.Errorf("failed to send default response: %w", err)
	}
	return nil
}
