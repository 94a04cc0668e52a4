package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// StoreBasedStateManager implements StateManager using a FlowStateStore backend.
type StoreBasedStateManager struct {
	store store.FlowStateStore
	now   func() time.Time
}

// NewStoreBasedStateManager creates a new StateManager backed by st.
func NewStoreBasedStateManager(st store.FlowStateStore) *StoreBasedStateManager {
	return &StoreBasedStateManager{store: st, now: time.Now}
}

// load returns the stored state, or a fresh unsaved one when none exists.
func (sm *StoreBasedStateManager) load(participantID string, flowType models.FlowType) (*models.FlowState, bool, error) {
	flowState, err := sm.store.GetFlowState(participantID, flowType)
	if err != nil {
		return nil, false, err
	}
	if flowState != nil {
		if flowState.StateData == nil {
			flowState.StateData = make(map[models.DataKey]string)
		}
		return flowState, true, nil
	}
	now := sm.now()
	return &models.FlowState{
		ParticipantID: participantID,
		FlowType:      flowType,
		StateData:     make(map[models.DataKey]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, false, nil
}

func (sm *StoreBasedStateManager) save(flowState *models.FlowState) error {
	flowState.UpdatedAt = sm.now()
	return sm.store.SaveFlowState(*flowState)
}

// GetCurrentState returns "" when the participant has no stored state.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, participantID string, flowType models.FlowType) (models.StateType, error) {
	flowState, found, err := sm.load(participantID, flowType)
	if err != nil {
		slog.Error("StateManager GetCurrentState error", "error", err, "participantID", participantID, "flowType", flowType)
		return "", err
	}
	if !found {
		return "", nil
	}
	slog.Debug("StateManager GetCurrentState found", "participantID", participantID, "flowType", flowType, "state", flowState.CurrentState)
	return flowState.CurrentState, nil
}

// GetStateData returns "" when the key is not set.
func (sm *StoreBasedStateManager) GetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey) (string, error) {
	flowState, _, err := sm.load(participantID, flowType)
	if err != nil {
		slog.Error("StateManager GetStateData error", "error", err, "participantID", participantID, "key", key)
		return "", err
	}
	return flowState.StateData[key], nil
}

func (sm *StoreBasedStateManager) SetStateData(ctx context.Context, participantID string, flowType models.FlowType, key models.DataKey, value string) error {
	flowState, _, err := sm.load(participantID, flowType)
	if err != nil {
		slog.Error("StateManager SetStateData get error", "error", err, "participantID", participantID, "key", key)
		return err
	}
	flowState.StateData[key] = value
	if err := sm.save(flowState); err != nil {
		slog.Error("StateManager SetStateData save error", "error", err, "participantID", participantID, "key", key)
		return err
	}
	slog.Debug("StateManager SetStateData succeeded", "participantID", participantID, "flowType", flowType, "key", key, "bytes", len(value))
	return nil
}

// StartState writes state and data in a single save, replacing any existing data.
func (sm *StoreBasedStateManager) StartState(ctx context.Context, participantID string, flowType models.FlowType, state models.StateType, data map[models.DataKey]string) error {
	flowState, _, err := sm.load(participantID, flowType)
	if err != nil {
		return err
	}
	flowState.CurrentState = state
	flowState.StateData = make(map[models.DataKey]string, len(data))
	for k, v := range data {
		flowState.StateData[k] = v
	}
	if err := sm.save(flowState); err != nil {
		slog.Error("StateManager StartState save error", "error", err, "participantID", participantID, "state", state)
		return err
	}
	slog.Info("StateManager StartState succeeded", "participantID", participantID, "flowType", flowType, "state", state)
	return nil
}

func (sm *StoreBasedStateManager) ResetState(ctx context.Context, participantID string, flowType models.FlowType) error {
	if err := sm.store.DeleteFlowState(participantID, flowType); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "participantID", participantID, "flowType", flowType)
		return err
	}
	slog.Info("StateManager ResetState succeeded", "participantID", participantID, "flowType", flowType)
	return nil
}
