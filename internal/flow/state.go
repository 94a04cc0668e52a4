// Package flow implements the training conversation: session state, the
// self-modifying prompt pipeline and the state machine that drives them.
package flow

import (
	"context"

	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// StateManager defines the interface for managing flow state.
type StateManager interface {
	// GetCurrentState retrieves the current state for a participant in a flow
	GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error)

	// GetStateData retrieves additional data associated with the participant's state
	GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error)

	// SetStateData stores additional data associated with the participant's state
	SetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey, value string) error

	// StartState sets the state and replaces its data in one write
	StartState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType, data map[models.DataKey]string) error

	// ResetState removes all state data for a participant in a flow
	ResetState(ctx context.Context, participantID string, flowType models.FlowType) error
}

// TextGenerator produces a chat completion.
type TextGenerator interface {
	Complete(ctx context.Context, messages []genai.Message, opts genai.CompletionOptions) (string, error)
}

// Sender delivers text replies to a subject.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}
