package flow

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// DefaultModificationThreshold is the pending count that triggers a prompt regeneration.
const DefaultModificationThreshold = 3

// ModificationLog records modification entries per prompt key.
type ModificationLog struct {
	store     store.ModificationStore
	threshold int
	now       func() time.Time
}

// NewModificationLog creates a log. A threshold below 1 uses DefaultModificationThreshold.
func NewModificationLog(st store.ModificationStore, threshold int) *ModificationLog {
	if threshold < 1 {
		threshold = DefaultModificationThreshold
	}
	return &ModificationLog{store: st, threshold: threshold, now: time.Now}
}

// Append stores entry in the pending log and the history. Missing ids and
// timestamps are filled in. It returns the stored entry and the pending count.
func (l *ModificationLog) Append(key string, entry models.ModificationEntry) (models.ModificationEntry, int, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	pending, err := l.store.AppendModification(key, entry)
	if err != nil {
		return entry, 0, fmt.Errorf("failed to append modification for %s: %w", key, err)
	}
	slog.Info("ModificationLog entry appended", "key", key, "id", entry.ID, "type", entry.Type, "pending", pending)
	return entry, pending, nil
}

// Pending returns the entries not yet folded into the prompt.
func (l *ModificationLog) Pending(key string) ([]models.ModificationEntry, error) {
	return l.store.ListModifications(key)
}

// History returns every entry ever recorded for key.
func (l *ModificationLog) History(key string) ([]models.ModificationEntry, error) {
	return l.store.ListModificationHistory(key)
}

// Clear removes entries from the pending log. Entries appended after
// entries were read stay pending. History is kept.
func (l *ModificationLog) Clear(key string, entries []models.ModificationEntry) error {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return l.store.ClearModifications(key, ids)
}

// ShouldRegenerate reports whether count pending entries reach the threshold.
func (l *ModificationLog) ShouldRegenerate(count int) bool {
	return count >= l.threshold
}

// Overdue returns, sorted, the keys whose pending count reaches the threshold.
// They are left behind when a regeneration fails.
func (l *ModificationLog) Overdue() ([]string, error) {
	counts, err := l.store.PendingCounts()
	if err != nil {
		return nil, fmt.Errorf("failed to count pending modifications: %w", err)
	}
	var keys []string
	for key, n := range counts {
		if l.ShouldRegenerate(n) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Threshold returns the configured regeneration threshold.
func (l *ModificationLog) Threshold() int {
	return l.threshold
}
