package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/events"
	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

const regenerationRequest = "Current prompt:\n%s\n\nModifications to incorporate:\n%s\n\nCreate an improved prompt that incorporates these modifications while maintaining the core functionality."

// PromptRegenerator folds pending modifications into a new current prompt.
type PromptRegenerator struct {
	gen       TextGenerator
	prompts   *PromptStore
	log       *ModificationLog
	templates *Templates
	publisher events.Publisher
	locks     *subjectLocks
}

// NewPromptRegenerator creates a PromptRegenerator. publisher may be nil.
func NewPromptRegenerator(gen TextGenerator, prompts *PromptStore, log *ModificationLog, templates *Templates, publisher events.Publisher) *PromptRegenerator {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &PromptRegenerator{gen: gen, prompts: prompts, log: log, templates: templates, publisher: publisher, locks: newSubjectLocks()}
}

// renderModifications formats entries one per line as "[timestamp] {json}".
func renderModifications(entries []models.ModificationEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			b = []byte(e.Description)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Timestamp.Format("2006-01-02 15:04:05"), b))
	}
	return strings.Join(lines, "\n")
}

// Regenerate rewrites the prompt for key from its pending entries. It reports
// whether a new prompt was installed. On failure the prompt and log are untouched.
func (r *PromptRegenerator) Regenerate(ctx context.Context, key, businessID string) (bool, error) {
	unlock := r.locks.Lock(key)
	defer unlock()

	pending, err := r.log.Pending(key)
	if err != nil {
		return false, fmt.Errorf("failed to read pending modifications: %w", err)
	}
	if len(pending) == 0 {
		slog.Debug("PromptRegenerator nothing to regenerate", "key", key)
		return false, nil
	}
	current, err := r.prompts.Current(key)
	if err != nil {
		return false, err
	}
	tmpl := r.templates.Resolve(businessID)

	newPrompt, err := r.gen.Complete(ctx, []genai.Message{
		genai.System(tmpl.TrainerPrompt),
		genai.User(fmt.Sprintf(regenerationRequest, current, renderModifications(pending))),
	}, genai.CompletionOptions{})
	if err != nil {
		slog.Error("PromptRegenerator generation failed", "error", err, "key", key)
		return false, fmt.Errorf("prompt generation failed: %w", err)
	}
	newPrompt = strings.TrimSpace(newPrompt)
	if err := r.prompts.Replace(key, newPrompt); err != nil {
		slog.Error("PromptRegenerator replace failed", "error", err, "key", key)
		return false, err
	}
	if err := r.log.Clear(key, pending); err != nil {
		// the new prompt is live; leftover entries are folded again next time
		slog.Error("PromptRegenerator clear failed", "error", err, "key", key)
		return true, fmt.Errorf("failed to clear modifications: %w", err)
	}

	slog.Info("PromptRegenerator prompt regenerated", "key", key, "modifications", len(pending), "length", len(newPrompt))
	if err := r.publisher.Publish(events.SubjectPromptRegenerated, events.PromptRegenerated{
		PromptKey:     key,
		Modifications: len(pending),
		PromptLength:  len(newPrompt),
		Timestamp:     time.Now(),
	}); err != nil {
		slog.Warn("PromptRegenerator event publish failed", "error", err)
	}
	return true, nil
}
