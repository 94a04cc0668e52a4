package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		outcome  models.ClassificationOutcome
		typ      models.ModificationType
		severity models.Severity
		delay    *float64
	}{
		{
			name:     "spanish modification",
			raw:      `{"is_modification": true, "modification_type": "comportamiento", "description": "Usar un tono más formal", "severity": "alta", "implementation_notes": "usted"}`,
			outcome:  models.Classified,
			typ:      models.ModificationBehavior,
			severity: models.SeverityHigh,
		},
		{
			name:     "fenced json",
			raw:      "```json\n{\"is_modification\": true, \"modification_type\": \"flujo\", \"description\": \"Preguntar primero la dirección\", \"severity\": \"media\"}\n```",
			outcome:  models.Classified,
			typ:      models.ModificationFlow,
			severity: models.SeverityMedium,
		},
		{
			name:     "with delay",
			raw:      `{"is_modification": true, "modification_type": "respuestas", "description": "Esperar 5 segundos", "severity": "baja", "delay_time": 5}`,
			outcome:  models.Classified,
			typ:      models.ModificationResponses,
			severity: models.SeverityLow,
			delay:    func() *float64 { f := 5.0; return &f }(),
		},
		{
			name:    "not a modification",
			raw:     `{"is_modification": false}`,
			outcome: models.NotModification,
		},
		{
			name:    "prose around json",
			raw:     `Aquí tienes: {"is_modification": false} gracias`,
			outcome: models.NotModification,
		},
		{
			name:    "invalid json",
			raw:     "no es json",
			outcome: models.ClassificationFailed,
		},
		{
			name:    "modification without description",
			raw:     `{"is_modification": true, "description": "  "}`,
			outcome: models.ClassificationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseClassification(tt.raw)
			if got.Outcome != tt.outcome {
				t.Fatalf("outcome = %s, want %s (err %v)", got.Outcome, tt.outcome, got.Err)
			}
			if tt.outcome != models.Classified {
				if got.Entry != nil {
					t.Errorf("expected no entry, got %+v", got.Entry)
				}
				return
			}
			if got.Entry.Type != tt.typ {
				t.Errorf("type = %s, want %s", got.Entry.Type, tt.typ)
			}
			if got.Entry.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", got.Entry.Severity, tt.severity)
			}
			switch {
			case tt.delay == nil && got.Entry.DelayTime != nil:
				t.Errorf("expected no delay, got %v", *got.Entry.DelayTime)
			case tt.delay != nil && (got.Entry.DelayTime == nil || *got.Entry.DelayTime != *tt.delay):
				t.Errorf("expected delay %v, got %v", *tt.delay, got.Entry.DelayTime)
			}
		})
	}
}

func TestClassifier_BuildsRequest(t *testing.T) {
	gen := &mockGenerator{classify: []string{`{"is_modification": false}`}}
	c := NewClassifier(gen, NewTemplates(store.NewInMemoryStore()))

	conversation := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "hola"},
		{Role: models.RoleAssistant, Content: "¡Hola! ¿En qué te ayudo?"},
		{Role: models.RoleUser, Content: "quiero una piscina"},
	}
	got := c.Classify(context.Background(), "default", conversation)
	if got.Outcome != models.NotModification {
		t.Fatalf("expected NotModification, got %s", got.Outcome)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected one generation call, got %d", len(gen.calls))
	}
	call := gen.calls[0]
	if !call.Opts.JSON {
		t.Error("expected JSON response format")
	}
	if call.Opts.Temperature == nil || *call.Opts.Temperature != ClassifierTemperature {
		t.Errorf("expected temperature %v", ClassifierTemperature)
	}
	if len(call.Messages) != 2 || call.Messages[0].Role != genai.RoleSystem || call.Messages[1].Role != genai.RoleUser {
		t.Fatalf("unexpected messages %+v", call.Messages)
	}
	system := call.Messages[0].Content
	if !strings.HasPrefix(system, DefaultModificationAnalyzerPrompt) {
		t.Error("expected analyzer template at the start of the system message")
	}
	if !strings.Contains(system, "Conversación:\nuser: hola\nassistant: ¡Hola! ¿En qué te ayudo?\nuser: quiero una piscina") {
		t.Errorf("transcript not rendered as expected:\n%s", system)
	}
	if call.Messages[1].Content != "quiero una piscina" {
		t.Errorf("expected last turn as user message, got %q", call.Messages[1].Content)
	}
}

func TestClassifier_UsesBusinessTemplate(t *testing.T) {
	st := store.NewInMemoryStore()
	_ = st.SaveBusinessTemplate(models.BusinessTemplate{BusinessID: "acme", ModificationAnalyzerPrompt: "ANALIZA"})
	gen := &mockGenerator{}
	c := NewClassifier(gen, NewTemplates(st))

	c.Classify(context.Background(), "acme", []models.ConversationTurn{{Role: models.RoleUser, Content: "x"}})
	if !strings.HasPrefix(gen.calls[0].Messages[0].Content, "ANALIZA\n\nConversación:") {
		t.Errorf("expected business analyzer template, got %q", gen.calls[0].Messages[0].Content)
	}
}

func TestClassifier_GenerationErrorFails(t *testing.T) {
	boom := errors.New("upstream down")
	gen := &mockGenerator{classifyErr: boom}
	c := NewClassifier(gen, NewTemplates(nil))

	got := c.Classify(context.Background(), "default", []models.ConversationTurn{{Role: models.RoleUser, Content: "x"}})
	if got.Outcome != models.ClassificationFailed {
		t.Fatalf("expected ClassificationFailed, got %s", got.Outcome)
	}
	if !errors.Is(got.Err, boom) {
		t.Errorf("expected wrapped generation error, got %v", got.Err)
	}
	if got.IsModification() {
		t.Error("failed classification must not count as a modification")
	}
}

func TestClassifier_EmptyConversation(t *testing.T) {
	gen := &mockGenerator{}
	got := NewClassifier(gen, NewTemplates(nil)).Classify(context.Background(), "default", nil)
	if got.Outcome != models.NotModification {
		t.Errorf("expected NotModification, got %s", got.Outcome)
	}
	if len(gen.calls) != 0 {
		t.Errorf("expected no generation call, got %d", len(gen.calls))
	}
}
