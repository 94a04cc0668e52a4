package models

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a training dialogue.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModificationType classifies what kind of behaviour change a user asked for.
type ModificationType string

const (
	ModificationBehavior  ModificationType = "behavior"
	ModificationFlow      ModificationType = "flow"
	ModificationResponses ModificationType = "responses"
	ModificationOther     ModificationType = "other"
)

// ParseModificationType maps English and Spanish labels onto a ModificationType.
// Unknown labels map to ModificationOther.
func ParseModificationType(s string) ModificationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "behavior", "behaviour", "comportamiento":
		return ModificationBehavior
	case "flow", "flujo":
		return ModificationFlow
	case "responses", "respuestas", "respuesta":
		return ModificationResponses
	default:
		return ModificationOther
	}
}

// Severity expresses how important a requested modification is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ParseSeverity maps English and Spanish labels onto a Severity. Unknown labels map to medium.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "alta", "alto":
		return SeverityHigh
	case "low", "baja", "bajo":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// ModificationEntry is structured feedback about a desired change in bot behaviour.
type ModificationEntry struct {
	ID                  string           `json:"id"`
	Timestamp           time.Time        `json:"timestamp"`
	Type                ModificationType `json:"modification_type"`
	Description         string           `json:"description"`
	Severity            Severity         `json:"severity"`
	ImplementationNotes string           `json:"implementation_notes"`
	DelayTime           *float64         `json:"delay_time,omitempty"` // seconds
}

// ClassificationOutcome tags the result of classifying a training turn.
type ClassificationOutcome int

const (
	// NotModification means the latest turn is ordinary conversation.
	NotModification ClassificationOutcome = iota
	// Classified means the latest turn asks for a behaviour change.
	Classified
	// ClassificationFailed means generation or parsing failed.
	ClassificationFailed
)

func (o ClassificationOutcome) String() string {
	switch o {
	case Classified:
		return "classified"
	case ClassificationFailed:
		return "failed"
	default:
		return "not_modification"
	}
}

// Classification is the tagged result returned by the message classifier.
// Entry is set only for Classified, Err only for ClassificationFailed.
type Classification struct {
	Outcome ClassificationOutcome
	Entry   *ModificationEntry
	Err     error
}

// IsModification reports whether the classification carries an entry to record.
func (c Classification) IsModification() bool {
	return c.Outcome == Classified && c.Entry != nil
}

// PromptRecord holds the current system prompt and every prompt that replaced it.
type PromptRecord struct {
	Key           string    `json:"key"`
	CurrentPrompt string    `json:"current_prompt"`
	PromptHistory []string  `json:"prompt_history"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BusinessTemplate carries business-specific instructions for the generation calls.
type BusinessTemplate struct {
	BusinessID                 string `json:"business_id"`
	ModificationAnalyzerPrompt string `json:"modification_analyzer_prompt"`
	NextIterationPrompt        string `json:"next_iteration_prompt"`
	TrainerPrompt              string `json:"trainer_prompt"`
}

// Validate checks the template carries a business id and at least one instruction.
func (t BusinessTemplate) Validate() error {
	if strings.TrimSpace(t.BusinessID) == "" {
		return ErrEmptyBusinessID
	}
	if t.ModificationAnalyzerPrompt == "" && t.NextIterationPrompt == "" && t.TrainerPrompt == "" {
		return ErrEmptyTemplateFields
	}
	for _, p := range []string{t.ModificationAnalyzerPrompt, t.NextIterationPrompt, t.TrainerPrompt} {
		if len(p) > MaxPromptLength {
			return ErrPromptTooLong
		}
	}
	return nil
}
