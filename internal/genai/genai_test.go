package genai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
	calls  int
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

// mockTranscriber implements transcriptionService for testing.
type mockTranscriber struct {
	text   string
	err    error
	params openai.AudioTranscriptionNewParams
}

func (m *mockTranscriber) Transcribe(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error) {
	m.params = params
	return m.text, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("Hola")}
	client := &Client{chat: mock, model: "test-model", temperature: 0.7}
	out, err := client.Complete(context.Background(), []Message{System("sys"), User("usr"), Assistant("prev")}, CompletionOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hola" {
		t.Errorf("expected 'Hola', got '%s'", out)
	}
	if len(mock.params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(mock.params.Messages))
	}
	if mock.params.Messages[0].OfSystem == nil || mock.params.Messages[1].OfUser == nil || mock.params.Messages[2].OfAssistant == nil {
		t.Error("messages were not mapped to their roles")
	}
	if string(mock.params.Model) != "test-model" {
		t.Errorf("expected default model, got %s", mock.params.Model)
	}
	if mock.params.ResponseFormat.OfJSONObject != nil {
		t.Error("JSON response format should not be requested by default")
	}
}

func TestComplete_Overrides(t *testing.T) {
	mock := &mockChatService{resp: completion("{}")}
	client := &Client{chat: mock, model: "test-model", temperature: 0.7}
	_, err := client.Complete(context.Background(), []Message{User("x")}, CompletionOptions{
		Model:       "other-model",
		Temperature: Temperature(0.3),
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(mock.params.Model) != "other-model" {
		t.Errorf("expected model override, got %s", mock.params.Model)
	}
	if mock.params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Complete(context.Background(), []Message{User("usr")}, CompletionOptions{})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.Complete(context.Background(), []Message{User("usr")}, CompletionOptions{})
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	mock := &mockTranscriber{text: "  quiero una piscina \n"}
	client := &Client{transcriber: mock, language: "es"}
	out, err := client.Transcribe(context.Background(), strings.NewReader("audio"), "voice.oga")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "quiero una piscina" {
		t.Errorf("expected trimmed transcript, got %q", out)
	}
	if mock.params.Model != openai.AudioModelWhisper1 {
		t.Errorf("expected whisper-1 model, got %s", mock.params.Model)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	client := &Client{transcriber: &mockTranscriber{text: "   "}}
	if _, err := client.Transcribe(context.Background(), strings.NewReader("a"), "v.oga"); err != ErrEmptyTranscript {
		t.Errorf("expected ErrEmptyTranscript, got %v", err)
	}

	client = &Client{transcriber: &mockTranscriber{err: io.ErrUnexpectedEOF}}
	if _, err := client.Transcribe(context.Background(), strings.NewReader("a"), "v.oga"); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped service error, got %v", err)
	}

	client = &Client{}
	if _, err := client.Transcribe(context.Background(), strings.NewReader("a"), "v.oga"); err == nil {
		t.Error("expected error without transcription service")
	}
}

func TestAudioContentType(t *testing.T) {
	tests := map[string]string{
		"a.oga": "audio/ogg",
		"a.mp3": "audio/mpeg",
		"a.M4A": "audio/mp4",
		"a.wav": "audio/wav",
		"a":     "audio/ogg",
	}
	for name, want := range tests {
		if got := audioContentType(name); got != want {
			t.Errorf("audioContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	client, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o"), WithTemperature(0.2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.model != "gpt-4o" || client.temperature != 0.2 {
		t.Errorf("options not applied: model=%s temperature=%v", client.model, client.temperature)
	}
	if client.language != DefaultTranscriptionLang {
		t.Errorf("expected default transcription language, got %q", client.language)
	}
}
