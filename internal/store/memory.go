package store

import (
	"sync"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// InMemoryStore is a thread-safe in-memory Store.
type InMemoryStore struct {
	mu          sync.RWMutex
	flowStates  map[string]models.FlowState
	prompts     map[string]models.PromptRecord
	pending     map[string][]models.ModificationEntry
	history     map[string][]models.ModificationEntry
	templates   map[string]models.BusinessTemplate
	leads       map[string]models.Lead
	deactivated map[string]bool
	settings    map[string]string
	inbound     map[string]bool // message id -> processed
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates:  make(map[string]models.FlowState),
		prompts:     make(map[string]models.PromptRecord),
		pending:     make(map[string][]models.ModificationEntry),
		history:     make(map[string][]models.ModificationEntry),
		templates:   make(map[string]models.BusinessTemplate),
		leads:       make(map[string]models.Lead),
		deactivated: make(map[string]bool),
		settings:    make(map[string]string),
		inbound:     make(map[string]bool),
	}
}

func flowKey(participantID string, flowType models.FlowType) string {
	return participantID + "|" + string(flowType)
}

func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make(map[models.DataKey]string, len(state.StateData))
	for k, v := range state.StateData {
		data[k] = v
	}
	state.StateData = data
	s.flowStates[flowKey(state.ParticipantID, state.FlowType)] = state
	return nil
}

func (s *InMemoryStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flowStates[flowKey(participantID, flowType)]
	if !ok {
		return nil, nil
	}
	data := make(map[models.DataKey]string, len(state.StateData))
	for k, v := range state.StateData {
		data[k] = v
	}
	state.StateData = data
	return &state, nil
}

func (s *InMemoryStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, flowKey(participantID, flowType))
	return nil
}

func (s *InMemoryStore) GetPromptRecord(key string) (*models.PromptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.prompts[key]
	if !ok {
		return nil, nil
	}
	rec.PromptHistory = append([]string(nil), rec.PromptHistory...)
	return &rec, nil
}

func (s *InMemoryStore) SavePromptRecord(record models.PromptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.PromptHistory = append([]string(nil), record.PromptHistory...)
	s.prompts[record.Key] = record
	return nil
}

func (s *InMemoryStore) AppendModification(key string, entry models.ModificationEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = append(s.pending[key], entry)
	s.history[key] = append(s.history[key], entry)
	return len(s.pending[key]), nil
}

func (s *InMemoryStore) ListModifications(key string) ([]models.ModificationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ModificationEntry(nil), s.pending[key]...), nil
}

func (s *InMemoryStore) ClearModifications(key string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []models.ModificationEntry
	for _, e := range s.pending[key] {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.pending, key)
	} else {
		s.pending[key] = kept
	}
	return nil
}

func (s *InMemoryStore) ListModificationHistory(key string) ([]models.ModificationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ModificationEntry(nil), s.history[key]...), nil
}

func (s *InMemoryStore) PendingCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.pending))
	for key, entries := range s.pending {
		if len(entries) > 0 {
			counts[key] = len(entries)
		}
	}
	return counts, nil
}

func (s *InMemoryStore) GetBusinessTemplate(businessID string) (*models.BusinessTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[businessID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) SaveBusinessTemplate(t models.BusinessTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.BusinessID] = t
	return nil
}

func (s *InMemoryStore) GetLead(id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (s *InMemoryStore) SaveLead(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.leads[lead.ID]; ok {
		lead.CreatedAt = existing.CreatedAt
	} else if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	s.leads[lead.ID] = lead
	return nil
}

func (s *InMemoryStore) UpdateLeadBudget(id string, budget int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	lead.Budget = budget
	lead.Status = models.LeadStatusBudgeted
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return nil
}

func (s *InMemoryStore) IsDeactivated(phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deactivated[phone], nil
}

func (s *InMemoryStore) SetDeactivated(phone string, deactivated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deactivated {
		s.deactivated[phone] = true
	} else {
		delete(s.deactivated, phone)
	}
	return nil
}

func (s *InMemoryStore) GetSetting(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *InMemoryStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
