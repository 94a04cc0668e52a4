package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	ev := BudgetRelayed{LeadID: "P-12", Phone: "34600111222", Budget: 15000, Images: 2, Timestamp: time.Unix(0, 0).UTC()}
	if err := r.Publish(SubjectBudget, ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	_ = r.Publish(SubjectModification, ModificationRecorded{PromptKey: "346"})

	if r.Count(SubjectBudget) != 1 || r.Count(SubjectModification) != 1 || r.Count(SubjectPromptRegenerated) != 0 {
		t.Errorf("unexpected counts: %+v", r.Events())
	}
	var got BudgetRelayed
	if err := json.Unmarshal(r.Events()[0].Payload, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.LeadID != "P-12" || got.Budget != 15000 {
		t.Errorf("unexpected payload %+v", got)
	}

	r.Err = errors.New("down")
	if err := r.Publish(SubjectBudget, ev); err == nil {
		t.Error("expected configured error")
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.Publish(SubjectBudget, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	p.Close()
}
