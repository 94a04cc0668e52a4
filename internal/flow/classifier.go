package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// ClassifierTemperature keeps analysis output close to deterministic.
const ClassifierTemperature = 0.3

var errMissingDescription = errors.New("modification without description")

// Classifier decides whether the latest training turn is a modification request.
type Classifier struct {
	gen       TextGenerator
	templates *Templates
}

// NewClassifier creates a Classifier.
func NewClassifier(gen TextGenerator, templates *Templates) *Classifier {
	return &Classifier{gen: gen, templates: templates}
}

// analysis is the JSON object requested from the model.
type analysis struct {
	IsModification      bool     `json:"is_modification"`
	ModificationType    string   `json:"modification_type"`
	Description         string   `json:"description"`
	Severity            string   `json:"severity"`
	ImplementationNotes string   `json:"implementation_notes"`
	DelayTime           *float64 `json:"delay_time"`
}

// renderTranscript formats turns as "role: content" lines.
func renderTranscript(conversation []models.ConversationTurn) string {
	var b strings.Builder
	for i, turn := range conversation {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Content)
	}
	return b.String()
}

// Classify analyses conversation, whose last turn is the user message under test.
// Failures are reported as ClassificationFailed, never as an error.
func (c *Classifier) Classify(ctx context.Context, businessID string, conversation []models.ConversationTurn) models.Classification {
	if len(conversation) == 0 {
		return models.Classification{Outcome: models.NotModification}
	}
	tmpl := c.templates.Resolve(businessID)
	system := tmpl.ModificationAnalyzerPrompt + "\n\nConversación:\n" + renderTranscript(conversation)
	last := conversation[len(conversation)-1].Content

	raw, err := c.gen.Complete(ctx, []genai.Message{genai.System(system), genai.User(last)}, genai.CompletionOptions{
		Temperature: genai.Temperature(ClassifierTemperature),
		JSON:        true,
	})
	if err != nil {
		slog.Warn("Classifier generation failed", "error", err)
		return models.Classification{Outcome: models.ClassificationFailed, Err: err}
	}
	return parseClassification(raw)
}

// parseClassification decodes the model output. Code fences and surrounding prose are tolerated.
func parseClassification(raw string) models.Classification {
	body := extractJSONObject(raw)
	var a analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		slog.Warn("Classifier returned invalid JSON", "error", err, "raw_length", len(raw))
		return models.Classification{Outcome: models.ClassificationFailed, Err: fmt.Errorf("invalid classifier output: %w", err)}
	}
	if !a.IsModification {
		return models.Classification{Outcome: models.NotModification}
	}
	desc := strings.TrimSpace(a.Description)
	if desc == "" {
		return models.Classification{Outcome: models.ClassificationFailed, Err: errMissingDescription}
	}
	entry := &models.ModificationEntry{
		Type:                models.ParseModificationType(a.ModificationType),
		Description:         desc,
		Severity:            models.ParseSeverity(a.Severity),
		ImplementationNotes: strings.TrimSpace(a.ImplementationNotes),
	}
	if a.DelayTime != nil && *a.DelayTime >= 0 {
		d := *a.DelayTime
		entry.DelayTime = &d
	}
	return models.Classification{Outcome: models.Classified, Entry: entry}
}

func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:] // drop the language tag line
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
