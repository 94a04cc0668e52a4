// Package events publishes domain events (training modifications, prompt regenerations, budgets) to NATS.
package events

import "time"

// Subjects published by TalkyTrainer.
const (
	SubjectModification      = "talky.training.modification"
	SubjectPromptRegenerated = "talky.training.prompt_regenerated"
	SubjectBudget            = "talky.relay.budget"
)

// Publisher emits events. Publishing is fire-and-forget: callers log errors and carry on.
type Publisher interface {
	Publish(subject string, data any) error
	Close()
}

// ModificationRecorded is emitted when a training message is classified as a modification.
type ModificationRecorded struct {
	PromptKey        string    `json:"prompt_key"`
	Subject          string    `json:"subject"`
	ModificationID   string    `json:"modification_id"`
	ModificationType string    `json:"modification_type"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	Pending          int       `json:"pending"`
	Timestamp        time.Time `json:"timestamp"`
}

// PromptRegenerated is emitted after the current prompt was rewritten.
type PromptRegenerated struct {
	PromptKey     string    `json:"prompt_key"`
	Modifications int       `json:"modifications"`
	PromptLength  int       `json:"prompt_length"`
	Timestamp     time.Time `json:"timestamp"`
}

// BudgetRelayed is emitted when a budget reply in the relay group was processed.
type BudgetRelayed struct {
	LeadID    string    `json:"lead_id"`
	Phone     string    `json:"phone"`
	Budget    int64     `json:"budget"`
	Images    int       `json:"images"`
	Created   bool      `json:"created"` // lead did not exist and was created from the quoted summary
	Timestamp time.Time `json:"timestamp"`
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
func (Noop) Close() {}
