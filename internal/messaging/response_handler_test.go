package messaging

import (
	"context"
	"errors"
	"testing"

	"go.mau.fi/whatsmeow/types"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
	"github.com/BTreeMap/TalkyTrainer/internal/whatsapp"
)

// passthroughNormalizer returns the message text, or ok=false for voice notes when failVoice is set.
type passthroughNormalizer struct {
	failVoice bool
}

func (n passthroughNormalizer) Normalize(ctx context.Context, msg models.InboundMessage) (string, bool) {
	if n.failVoice && msg.Kind.IsAudio() {
		return "", false
	}
	return msg.Text, true
}

func newTestHandler() (*ResponseHandler, *whatsapp.MockClient) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	return NewResponseHandler(svc, passthroughNormalizer{failVoice: true}, nil), mockClient
}

func TestResponseHandler_ActionChainOrder(t *testing.T) {
	handler, _ := newTestHandler()
	var calls []string
	handler.AddAction("first", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		calls = append(calls, "first")
		return false, nil
	})
	handler.AddAction("failing", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		calls = append(calls, "failing")
		return false, errors.New("boom")
	})
	handler.AddAction("second", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		calls = append(calls, "second:"+from+":"+text)
		return true, nil
	})
	handler.AddAction("never", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		calls = append(calls, "never")
		return true, nil
	})

	err := handler.ProcessMessage(context.Background(), models.InboundMessage{From: "+34600111222", Kind: models.KindText, Text: "hola"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	want := []string{"first", "failing", "second:34600111222:hola"}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestResponseHandler_VoiceFailure(t *testing.T) {
	handler, mockClient := newTestHandler()
	handler.AddAction("unreachable", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		t.Error("actions must not run when normalisation fails")
		return true, nil
	})
	if err := handler.ProcessMessage(context.Background(), models.InboundMessage{From: "34600111222", Kind: models.KindVoice}); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	sent := mockClient.Sent()
	if len(sent) != 1 || sent[0].Body != VoiceFailureMessage {
		t.Errorf("expected voice failure notice, got %+v", sent)
	}
}

func TestResponseHandler_EmptyTextDropped(t *testing.T) {
	handler, mockClient := newTestHandler()
	handler.SetDefaultMessage("default")
	if err := handler.ProcessMessage(context.Background(), models.InboundMessage{From: "34600111222", Kind: models.KindImage, Text: "  "}); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if len(mockClient.Sent()) != 0 {
		t.Errorf("expected nothing sent, got %+v", mockClient.Sent())
	}
}

func TestResponseHandler_DefaultMessage(t *testing.T) {
	handler, mockClient := newTestHandler()
	ctx := context.Background()
	msg := models.InboundMessage{From: "34600111222", Kind: models.KindText, Text: "hola"}

	if err := handler.ProcessMessage(ctx, msg); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if len(mockClient.Sent()) != 0 {
		t.Error("no default message should be sent when unset")
	}

	handler.SetDefaultMessage("Gracias por tu mensaje")
	if handler.GetDefaultMessage() != "Gracias por tu mensaje" {
		t.Errorf("unexpected default message %q", handler.GetDefaultMessage())
	}
	if err := handler.ProcessMessage(ctx, msg); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	sent := mockClient.Sent()
	if len(sent) != 1 || sent[0].Body != "Gracias por tu mensaje" {
		t.Errorf("expected default message, got %+v", sent)
	}
}

func TestResponseHandler_InvalidSender(t *testing.T) {
	handler, _ := newTestHandler()
	if err := handler.ProcessMessage(context.Background(), models.InboundMessage{From: "abc", Text: "x"}); err == nil {
		t.Error("expected invalid sender error")
	}
}

func TestResponseHandler_SubscriptionFiltersAndDedup(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	handler := NewResponseHandler(svc, passthroughNormalizer{}, store.NewInMemoryStore())

	seen := make(chan string, 10)
	handler.AddAction("record", func(ctx context.Context, from, text string, ts int64) (bool, error) {
		seen <- text
		return true, nil
	})
	handler.Start(context.Background())

	direct := textEvent("M1", "34600111222", "directo")
	mockClient.Emit(direct)
	mockClient.Emit(direct) // provider redelivery

	group := textEvent("M2", "34600111222", "grupo")
	group.Info.Chat = types.NewJID("120363000000000000", types.GroupServer)
	group.Info.IsGroup = true
	mockClient.Emit(group)

	own := textEvent("M3", "34600111222", "propio")
	own.Info.IsFromMe = true
	mockClient.Emit(own)

	handler.Stop()
	close(seen)

	var got []string
	for text := range seen {
		got = append(got, text)
	}
	if len(got) != 1 || got[0] != "directo" {
		t.Errorf("expected only the direct message once, got %v", got)
	}
}
