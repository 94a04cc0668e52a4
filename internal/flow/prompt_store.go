package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// ErrEmptyPrompt is returned when replacing a prompt with blank text.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// PromptStore holds the current behavioural prompt per key and its history.
type PromptStore struct {
	store store.PromptRecordStore
	now   func() time.Time
}

// NewPromptStore creates a PromptStore backed by st.
func NewPromptStore(st store.PromptRecordStore) *PromptStore {
	return &PromptStore{store: st, now: time.Now}
}

// Current returns the current prompt for key, installing DefaultBootstrapPrompt when none is stored.
func (p *PromptStore) Current(key string) (string, error) {
	rec, err := p.store.GetPromptRecord(key)
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", key, err)
	}
	if rec != nil && strings.TrimSpace(rec.CurrentPrompt) != "" {
		return rec.CurrentPrompt, nil
	}

	install := models.PromptRecord{Key: key, CurrentPrompt: DefaultBootstrapPrompt, UpdatedAt: p.now()}
	if rec != nil {
		install.PromptHistory = rec.PromptHistory
	}
	install.PromptHistory = append(install.PromptHistory, DefaultBootstrapPrompt)
	if err := p.store.SavePromptRecord(install); err != nil {
		return "", fmt.Errorf("failed to install bootstrap prompt for %s: %w", key, err)
	}
	slog.Info("PromptStore installed bootstrap prompt", "key", key)
	return DefaultBootstrapPrompt, nil
}

// Replace sets the current prompt and appends it to the history.
func (p *PromptStore) Replace(key, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(prompt) > models.MaxPromptLength {
		return models.ErrPromptTooLong
	}
	rec, err := p.store.GetPromptRecord(key)
	if err != nil {
		return fmt.Errorf("failed to load prompt %s: %w", key, err)
	}
	updated := models.PromptRecord{Key: key}
	if rec != nil {
		updated.PromptHistory = rec.PromptHistory
	}
	updated.CurrentPrompt = prompt
	updated.PromptHistory = append(updated.PromptHistory, prompt)
	updated.UpdatedAt = p.now()
	if err := p.store.SavePromptRecord(updated); err != nil {
		return fmt.Errorf("failed to save prompt %s: %w", key, err)
	}
	slog.Info("PromptStore prompt replaced", "key", key, "length", len(prompt), "history", len(updated.PromptHistory))
	return nil
}

// Record returns the full record for key, or nil when the key was never used.
func (p *PromptStore) Record(key string) (*models.PromptRecord, error) {
	return p.store.GetPromptRecord(key)
}

// History returns every prompt that has been current for key, oldest first.
func (p *PromptStore) History(key string) ([]string, error) {
	rec, err := p.store.GetPromptRecord(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt %s: %w", key, err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.PromptHistory, nil
}
