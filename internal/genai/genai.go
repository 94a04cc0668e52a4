// Package genai provides text generation and speech transcription over the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default generation settings.
const (
	DefaultModel              = openai.ChatModelGPT4oMini
	DefaultTemperature        = 0.7
	DefaultTranscriptionLang  = "es"
	debugDirName              = "debug"
	debugFilePermissions      = 0644
	debugDirectoryPermissions = 0755
)

var (
	// ErrNoChoicesReturned is returned when the completion carries no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyTranscript is returned when transcription yields no text.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// Role is the author of a generation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant build messages for the given role.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CompletionOptions adjusts a single generation call. Zero values use the client defaults.
type CompletionOptions struct {
	Model       string
	Temperature *float64
	JSON        bool // request a JSON object response
}

// Temperature returns a pointer for CompletionOptions.Temperature.
func Temperature(t float64) *float64 { return &t }

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// transcriptionService defines minimal interface for speech-to-text.
type transcriptionService interface {
	Transcribe(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error)
}

type openAIChat struct{ client openai.Client }

func (s openAIChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

type openAITranscriber struct{ client openai.Client }

func (s openAITranscriber) Transcribe(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error) {
	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
	Language    string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps completion tokens. Zero leaves the API default.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode dumps every call as JSON under <stateDir>/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets the directory used for debug dumps.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithTranscriptionLanguage sets the ISO-639-1 hint passed to transcription.
func WithTranscriptionLanguage(lang string) Option {
	return func(o *Opts) { o.Language = lang }
}

// Client wraps the OpenAI chat and transcription services.
type Client struct {
	chat        chatService
	transcriber transcriptionService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
	language    string
}

// NewClient initializes a new GenAI client from the given options. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: DefaultTemperature, Language: DefaultTranscriptionLang}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("GenAI NewClient options set", "APIKey_set", cfg.APIKey != "", "model", cfg.Model, "debug", cfg.DebugMode)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:        openAIChat{client: cli},
		transcriber: openAITranscriber{client: cli},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
		language:    cfg.Language,
	}, nil
}

// Complete runs one chat completion and returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toParams(messages),
		Temperature: openai.Float(temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	slog.Debug("GenAI Complete invoked", "model", model, "messages", len(messages), "json", opts.JSON)
	resp, err := c.chat.Create(ctx, params)
	c.writeDebugLog("Complete", model, messages, resp, err)
	if err != nil {
		slog.Error("GenAI Complete failed", "error", err, "model", model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI Complete returned no choices", "model", model)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("GenAI Complete succeeded", "model", model, "response_length", len(content))
	return content, nil
}

// Transcribe converts speech to text. filename carries the audio format, e.g. "voice.oga".
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("transcription service not configured")
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, audioContentType(filename)),
		Model: openai.AudioModelWhisper1,
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}
	slog.Debug("GenAI Transcribe invoked", "filename", filename)
	text, err := c.transcriber.Transcribe(ctx, params)
	c.writeDebugLog("Transcribe", string(openai.AudioModelWhisper1), filename, text, err)
	if err != nil {
		slog.Error("GenAI Transcribe failed", "error", err, "filename", filename)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	slog.Debug("GenAI Transcribe succeeded", "transcript_length", len(text))
	return text, nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	default:
		return "audio/ogg"
	}
}

// writeDebugLog dumps the call to <stateDir>/debug when debug mode is enabled.
func (c *Client) writeDebugLog(method, model string, params, response any, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, debugDirName)
	if err := os.MkdirAll(dir, debugDirectoryPermissions); err != nil {
		slog.Warn("GenAI writeDebugLog mkdir failed", "error", err, "dir", dir)
		return
	}
	entry := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"method":    method,
		"model":     model,
		"params":    params,
		"response":  response,
	}
	if callErr != nil {
		entry["error"] = callErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI writeDebugLog marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s_%s.json", time.Now().Format("20060102T150405"), strings.ToLower(method), uuid.NewString()[:8])
	if err := os.WriteFile(filepath.Join(dir, name), data, debugFilePermissions); err != nil {
		slog.Warn("GenAI writeDebugLog write failed", "error", err)
	}
}
