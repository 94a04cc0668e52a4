package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

func TestPromptStore_CurrentInstallsBootstrap(t *testing.T) {
	st := store.NewInMemoryStore()
	ps := NewPromptStore(st)

	got, err := ps.Current("34600111222")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != DefaultBootstrapPrompt {
		t.Errorf("expected bootstrap prompt")
	}
	rec, _ := st.GetPromptRecord("34600111222")
	if rec == nil || rec.CurrentPrompt != DefaultBootstrapPrompt {
		t.Fatalf("expected bootstrap prompt persisted, got %+v", rec)
	}
	if len(rec.PromptHistory) != 1 {
		t.Errorf("expected history of 1, got %d", len(rec.PromptHistory))
	}

	// second read must not grow the history
	if _, err := ps.Current("34600111222"); err != nil {
		t.Fatalf("Current: %v", err)
	}
	history, _ := ps.History("34600111222")
	if len(history) != 1 {
		t.Errorf("expected history of 1 after re-read, got %d", len(history))
	}
}

func TestPromptStore_CurrentReplacesBlankPrompt(t *testing.T) {
	st := store.NewInMemoryStore()
	_ = st.SavePromptRecord(models.PromptRecord{Key: "k", CurrentPrompt: "  ", PromptHistory: []string{"old"}})
	ps := NewPromptStore(st)

	got, err := ps.Current("k")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != DefaultBootstrapPrompt {
		t.Errorf("expected bootstrap prompt for blank record")
	}
	history, _ := ps.History("k")
	if len(history) != 2 || history[0] != "old" {
		t.Errorf("expected history to be kept and extended, got %v", history)
	}
}

func TestPromptStore_Replace(t *testing.T) {
	ps := NewPromptStore(store.NewInMemoryStore())
	if _, err := ps.Current("k"); err != nil {
		t.Fatalf("Current: %v", err)
	}

	tests := []struct {
		name   string
		prompt string
		want   error
	}{
		{"valid", "Sé breve y cordial.", nil},
		{"empty", "", ErrEmptyPrompt},
		{"blank", " \n ", ErrEmptyPrompt},
		{"too long", strings.Repeat("a", models.MaxPromptLength+1), models.ErrPromptTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Replace("k", tt.prompt)
			if !errors.Is(err, tt.want) {
				t.Errorf("Replace() = %v, want %v", err, tt.want)
			}
		})
	}

	got, _ := ps.Current("k")
	if got != "Sé breve y cordial." {
		t.Errorf("expected replaced prompt, got %q", got)
	}
	history, _ := ps.History("k")
	if len(history) != 2 || history[1] != "Sé breve y cordial." {
		t.Errorf("unexpected history %v", history)
	}
}

func TestPromptStore_HistoryUnknownKey(t *testing.T) {
	ps := NewPromptStore(store.NewInMemoryStore())
	history, err := ps.History("missing")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history != nil {
		t.Errorf("expected nil history, got %v", history)
	}
}
