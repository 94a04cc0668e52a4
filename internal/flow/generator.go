package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// FallbackReply is returned whenever a reply cannot be generated.
const FallbackReply = "Lo siento, ha ocurrido un error. ¿Podrías repetir tu mensaje?"

// GeneratorTemperature is the sampling temperature for conversational replies.
const GeneratorTemperature = 0.7

// ResponseGenerator produces the bot's conversational reply under the current prompt.
type ResponseGenerator struct {
	gen       TextGenerator
	prompts   *PromptStore
	templates *Templates
}

// NewResponseGenerator creates a ResponseGenerator.
func NewResponseGenerator(gen TextGenerator, prompts *PromptStore, templates *Templates) *ResponseGenerator {
	return &ResponseGenerator{gen: gen, prompts: prompts, templates: templates}
}

// Generate returns the reply to conversation. It never fails; errors yield FallbackReply.
func (g *ResponseGenerator) Generate(ctx context.Context, promptKey, businessID string, conversation []models.ConversationTurn) string {
	prompt, err := g.prompts.Current(promptKey)
	if err != nil {
		slog.Error("ResponseGenerator prompt lookup failed", "error", err, "key", promptKey)
		return FallbackReply
	}
	tmpl := g.templates.Resolve(businessID)

	messages := make([]genai.Message, 0, len(conversation)+1)
	messages = append(messages, genai.System(prompt+"\n\n"+tmpl.NextIterationPrompt))
	for _, turn := range conversation {
		if turn.Role == models.RoleAssistant {
			messages = append(messages, genai.Assistant(turn.Content))
		} else {
			messages = append(messages, genai.User(turn.Content))
		}
	}

	reply, err := g.gen.Complete(ctx, messages, genai.CompletionOptions{Temperature: genai.Temperature(GeneratorTemperature)})
	if err != nil {
		slog.Error("ResponseGenerator generation failed", "error", err, "key", promptKey)
		return FallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		slog.Warn("ResponseGenerator returned empty reply", "key", promptKey)
		return FallbackReply
	}
	return reply
}
