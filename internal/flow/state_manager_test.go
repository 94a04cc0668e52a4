package flow

import (
	"context"
	"testing"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

func TestStoreBasedStateManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sm := NewStoreBasedStateManager(store.NewInMemoryStore())
	participant := "34600111222"

	state, err := sm.GetCurrentState(ctx, participant, models.FlowTypeTraining)
	if err != nil {
		t.Fatalf("GetCurrentState: %v", err)
	}
	if state != "" {
		t.Errorf("expected empty state for unknown participant, got %q", state)
	}

	err = sm.StartState(ctx, participant, models.FlowTypeTraining, models.StateTraining,
		map[models.DataKey]string{models.DataKeyConversation: "[]"})
	if err != nil {
		t.Fatalf("StartState: %v", err)
	}
	state, _ = sm.GetCurrentState(ctx, participant, models.FlowTypeTraining)
	if state != models.StateTraining {
		t.Errorf("expected %s, got %s", models.StateTraining, state)
	}
	data, _ := sm.GetStateData(ctx, participant, models.FlowTypeTraining, models.DataKeyConversation)
	if data != "[]" {
		t.Errorf("expected empty conversation, got %q", data)
	}

	if err := sm.SetStateData(ctx, participant, models.FlowTypeTraining, models.DataKeyConversation, `[{"role":"user","content":"hola"}]`); err != nil {
		t.Fatalf("SetStateData: %v", err)
	}
	state, _ = sm.GetCurrentState(ctx, participant, models.FlowTypeTraining)
	if state != models.StateTraining {
		t.Errorf("SetStateData must keep the state, got %s", state)
	}

	if err := sm.ResetState(ctx, participant, models.FlowTypeTraining); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	state, _ = sm.GetCurrentState(ctx, participant, models.FlowTypeTraining)
	if state != "" {
		t.Errorf("expected state cleared, got %q", state)
	}
	data, _ = sm.GetStateData(ctx, participant, models.FlowTypeTraining, models.DataKeyConversation)
	if data != "" {
		t.Errorf("expected data cleared, got %q", data)
	}
}

func TestStoreBasedStateManager_StartStateReplacesData(t *testing.T) {
	ctx := context.Background()
	var sm StateManager = NewStoreBasedStateManager(store.NewInMemoryStore())

	if err := sm.SetStateData(ctx, "p", models.FlowTypeTraining, models.DataKeyConversation, `[{"role":"user","content":"hola"}]`); err != nil {
		t.Fatalf("SetStateData: %v", err)
	}
	if err := sm.StartState(ctx, "p", models.FlowTypeTraining, models.StateTraining, nil); err != nil {
		t.Fatalf("StartState: %v", err)
	}
	data, _ := sm.GetStateData(ctx, "p", models.FlowTypeTraining, models.DataKeyConversation)
	if data != "" {
		t.Errorf("expected previous conversation dropped, got %q", data)
	}
	state, _ := sm.GetCurrentState(ctx, "p", models.FlowTypeTraining)
	if state != models.StateTraining {
		t.Errorf("expected %s, got %s", models.StateTraining, state)
	}
}
