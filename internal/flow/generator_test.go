package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

func TestResponseGenerator_Generate(t *testing.T) {
	st := store.NewInMemoryStore()
	prompts := NewPromptStore(st)
	if err := prompts.Replace("k", "PROMPT"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	gen := &mockGenerator{reply: "  ¡Claro! ¿Cuál es tu dirección?  "}
	g := NewResponseGenerator(gen, prompts, NewTemplates(st))

	conversation := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "hola"},
		{Role: models.RoleAssistant, Content: "¡Hola!"},
		{Role: models.RoleUser, Content: "quiero presupuesto"},
	}
	got := g.Generate(context.Background(), "k", "default", conversation)
	if got != "¡Claro! ¿Cuál es tu dirección?" {
		t.Errorf("unexpected reply %q", got)
	}

	call := gen.calls[0]
	if call.Opts.Temperature == nil || *call.Opts.Temperature != GeneratorTemperature {
		t.Errorf("expected temperature %v", GeneratorTemperature)
	}
	want := []genai.Message{
		genai.System("PROMPT\n\n" + DefaultNextIterationPrompt),
		genai.User("hola"),
		genai.Assistant("¡Hola!"),
		genai.User("quiero presupuesto"),
	}
	if len(call.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(call.Messages))
	}
	for i := range want {
		if call.Messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, call.Messages[i], want[i])
		}
	}
}

func TestResponseGenerator_Fallback(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
	}{
		{"error", &mockGenerator{replyErr: errors.New("rate limited")}},
		{"empty", &mockGenerator{reply: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewInMemoryStore()
			g := NewResponseGenerator(tt.gen, NewPromptStore(st), NewTemplates(st))
			got := g.Generate(context.Background(), "k", "default", []models.ConversationTurn{{Role: models.RoleUser, Content: "hola"}})
			if got != FallbackReply {
				t.Errorf("expected fallback reply, got %q", got)
			}
		})
	}
}
