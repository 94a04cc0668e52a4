package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/TalkyTrainer/internal/events"
	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

type regeneratorFixture struct {
	gen      *mockGenerator
	prompts  *PromptStore
	log      *ModificationLog
	recorder *events.Recorder
	regen    *PromptRegenerator
}

func newRegeneratorFixture(gen *mockGenerator) *regeneratorFixture {
	st := store.NewInMemoryStore()
	f := &regeneratorFixture{
		gen:      gen,
		prompts:  NewPromptStore(st),
		log:      NewModificationLog(st, 0),
		recorder: &events.Recorder{},
	}
	f.regen = NewPromptRegenerator(gen, f.prompts, f.log, NewTemplates(st), f.recorder)
	return f
}

func (f *regeneratorFixture) addEntries(t *testing.T, key string, descriptions ...string) {
	t.Helper()
	for _, d := range descriptions {
		if _, _, err := f.log.Append(key, models.ModificationEntry{Type: models.ModificationBehavior, Description: d, Severity: models.SeverityMedium}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestPromptRegenerator_NoPendingIsNoop(t *testing.T) {
	f := newRegeneratorFixture(&mockGenerator{regenerated: "NEW"})
	changed, err := f.regen.Regenerate(context.Background(), "k", "default")
	if err != nil || changed {
		t.Fatalf("expected no-op, got changed=%v err=%v", changed, err)
	}
	if len(f.gen.calls) != 0 {
		t.Errorf("expected no generation call, got %d", len(f.gen.calls))
	}
}

func TestPromptRegenerator_Success(t *testing.T) {
	f := newRegeneratorFixture(&mockGenerator{regenerated: "  NEW PROMPT  "})
	f.addEntries(t, "k", "tono formal", "pedir la dirección", "respuestas cortas")

	changed, err := f.regen.Regenerate(context.Background(), "k", "default")
	if err != nil || !changed {
		t.Fatalf("expected regeneration, got changed=%v err=%v", changed, err)
	}

	current, _ := f.prompts.Current("k")
	if current != "NEW PROMPT" {
		t.Errorf("expected new prompt, got %q", current)
	}
	history, _ := f.prompts.History("k")
	if len(history) != 2 || history[0] != DefaultBootstrapPrompt {
		t.Errorf("expected bootstrap then new prompt in history, got %d entries", len(history))
	}
	pending, _ := f.log.Pending("k")
	if len(pending) != 0 {
		t.Errorf("expected pending log cleared, got %d", len(pending))
	}
	all, _ := f.log.History("k")
	if len(all) != 3 {
		t.Errorf("expected history log to keep 3 entries, got %d", len(all))
	}
	if n := f.recorder.Count(events.SubjectPromptRegenerated); n != 1 {
		t.Errorf("expected one prompt_regenerated event, got %d", n)
	}

	call := f.gen.calls[0]
	if call.Messages[0].Content != DefaultTrainerPrompt {
		t.Errorf("expected trainer prompt as system message, got %q", call.Messages[0].Content)
	}
	user := call.Messages[1].Content
	if !strings.HasPrefix(user, "Current prompt:\n"+DefaultBootstrapPrompt+"\n\nModifications to incorporate:\n[") {
		t.Errorf("unexpected request layout:\n%s", user)
	}
	for _, d := range []string{"tono formal", "pedir la dirección", "respuestas cortas"} {
		if !strings.Contains(user, d) {
			t.Errorf("expected %q in request", d)
		}
	}
	if !strings.HasSuffix(user, "while maintaining the core functionality.") {
		t.Error("expected closing instruction")
	}
}

func TestPromptRegenerator_FailureLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
	}{
		{"generation error", &mockGenerator{regenErr: errors.New("timeout")}},
		{"empty result", &mockGenerator{regenerated: " \n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegeneratorFixture(tt.gen)
			f.addEntries(t, "k", "a", "b", "c")

			changed, err := f.regen.Regenerate(context.Background(), "k", "default")
			if err == nil || changed {
				t.Fatalf("expected failure, got changed=%v err=%v", changed, err)
			}
			current, _ := f.prompts.Current("k")
			if current != DefaultBootstrapPrompt {
				t.Error("prompt must be untouched")
			}
			pending, _ := f.log.Pending("k")
			if len(pending) != 3 {
				t.Errorf("pending log must be kept, got %d", len(pending))
			}
			if n := f.recorder.Count(events.SubjectPromptRegenerated); n != 0 {
				t.Errorf("expected no event, got %d", n)
			}
		})
	}
}

// gatedGenerator holds regeneration calls until release is closed.
type gatedGenerator struct {
	*mockGenerator
	started chan struct{}
	release chan struct{}
}

func (g *gatedGenerator) Complete(ctx context.Context, messages []genai.Message, opts genai.CompletionOptions) (string, error) {
	if !opts.JSON && opts.Temperature == nil {
		close(g.started)
		<-g.release
	}
	return g.mockGenerator.Complete(ctx, messages, opts)
}

func TestPromptRegenerator_KeepsEntriesAppendedDuringGeneration(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &gatedGenerator{
		mockGenerator: &mockGenerator{regenerated: "NEW PROMPT"},
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	log := NewModificationLog(st, 0)
	regen := NewPromptRegenerator(gen, NewPromptStore(st), log, NewTemplates(st), &events.Recorder{})
	for _, d := range []string{"tono formal", "pedir la dirección", "respuestas cortas"} {
		if _, _, err := log.Append("k", models.ModificationEntry{Type: models.ModificationBehavior, Description: d}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	type result struct {
		changed bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		changed, err := regen.Regenerate(context.Background(), "k", "default")
		done <- result{changed, err}
	}()

	<-gen.started
	if _, _, err := log.Append("k", models.ModificationEntry{Type: models.ModificationResponses, Description: "LATE ENTRY"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	close(gen.release)

	res := <-done
	if res.err != nil || !res.changed {
		t.Fatalf("expected regeneration, got changed=%v err=%v", res.changed, res.err)
	}
	pending, _ := log.Pending("k")
	if len(pending) != 1 || pending[0].Description != "LATE ENTRY" {
		t.Fatalf("expected the late entry to stay pending, got %+v", pending)
	}
	history, _ := log.History("k")
	if len(history) != 4 {
		t.Errorf("expected history of 4 entries, got %d", len(history))
	}
}
