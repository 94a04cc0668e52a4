package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// sqlStore implements Store over database/sql. Queries are written with '?'
// placeholders and rebound to '$n' for PostgreSQL.
type sqlStore struct {
	db      *sql.DB
	name    string // log prefix, e.g. "SQLiteStore"
	numeric bool   // use $1, $2 ... placeholders
}

func (s *sqlStore) q(query string) string {
	if !s.numeric {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + " closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.name+" Close failed", "error", err)
	} else {
		slog.Debug(s.name + " database connection closed successfully")
	}
	return err
}

// SaveFlowState stores or updates flow state for a participant.
func (s *sqlStore) SaveFlowState(state models.FlowState) error {
	query := s.q(`
		INSERT INTO flow_states (participant_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id, flow_type) DO UPDATE SET
			current_state = excluded.current_state,
			state_data = excluded.state_data,
			updated_at = excluded.updated_at`)

	stateDataJSON, err := marshalStateData(state.StateData)
	if err != nil {
		slog.Error(s.name+" SaveFlowState JSON marshal failed", "error", err, "participantID", state.ParticipantID)
		return err
	}

	_, err = s.db.Exec(query, state.ParticipantID, string(state.FlowType), string(state.CurrentState),
		stateDataJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SaveFlowState failed", "error", err, "participantID", state.ParticipantID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state for %s: %w", state.ParticipantID, err)
	}
	slog.Debug(s.name+" SaveFlowState succeeded", "participantID", state.ParticipantID, "flowType", state.FlowType, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a participant.
func (s *sqlStore) GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error) {
	query := s.q(`SELECT participant_id, flow_type, current_state, state_data, created_at, updated_at
			  FROM flow_states WHERE participant_id = ? AND flow_type = ?`)

	var state models.FlowState
	var ft, cs string
	var stateDataJSON sql.NullString

	err := s.db.QueryRow(query, participantID, string(flowType)).Scan(
		&state.ParticipantID, &ft, &cs, &stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug(s.name+" GetFlowState not found", "participantID", participantID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return nil, fmt.Errorf("failed to load flow state for %s: %w", participantID, err)
	}
	state.FlowType = models.FlowType(ft)
	state.CurrentState = models.StateType(cs)
	state.StateData = unmarshalStateData(stateDataJSON.String, participantID)

	slog.Debug(s.name+" GetFlowState found", "participantID", participantID, "flowType", flowType, "state", state.CurrentState)
	return &state, nil
}

// DeleteFlowState removes flow state for a participant.
func (s *sqlStore) DeleteFlowState(participantID string, flowType models.FlowType) error {
	_, err := s.db.Exec(s.q(`DELETE FROM flow_states WHERE participant_id = ? AND flow_type = ?`), participantID, string(flowType))
	if err != nil {
		slog.Error(s.name+" DeleteFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return fmt.Errorf("failed to delete flow state for %s: %w", participantID, err)
	}
	slog.Debug(s.name+" DeleteFlowState succeeded", "participantID", participantID, "flowType", flowType)
	return nil
}

// GetPromptRecord loads the prompt record for a key.
func (s *sqlStore) GetPromptRecord(key string) (*models.PromptRecord, error) {
	var rec models.PromptRecord
	var historyJSON sql.NullString
	err := s.db.QueryRow(s.q(`SELECT record_key, current_prompt, prompt_history, updated_at FROM prompt_records WHERE record_key = ?`), key).
		Scan(&rec.Key, &rec.CurrentPrompt, &historyJSON, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug(s.name+" GetPromptRecord not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetPromptRecord failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to load prompt record %s: %w", key, err)
	}
	if historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &rec.PromptHistory); err != nil {
			slog.Error(s.name+" GetPromptRecord history unmarshal failed", "error", err, "key", key)
			return nil, fmt.Errorf("failed to decode prompt history %s: %w", key, err)
		}
	}
	return &rec, nil
}

// SavePromptRecord inserts or replaces the prompt record for its key.
func (s *sqlStore) SavePromptRecord(record models.PromptRecord) error {
	history := record.PromptHistory
	if history == nil {
		history = []string{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode prompt history: %w", err)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	_, err = s.db.Exec(s.q(`
		INSERT INTO prompt_records (record_key, current_prompt, prompt_history, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (record_key) DO UPDATE SET
			current_prompt = excluded.current_prompt,
			prompt_history = excluded.prompt_history,
			updated_at = excluded.updated_at`),
		record.Key, record.CurrentPrompt, string(historyJSON), record.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SavePromptRecord failed", "error", err, "key", record.Key)
		return fmt.Errorf("failed to save prompt record %s: %w", record.Key, err)
	}
	slog.Debug(s.name+" SavePromptRecord succeeded", "key", record.Key, "history_len", len(history))
	return nil
}

// AppendModification writes the entry to the pending log and the history in one transaction.
func (s *sqlStore) AppendModification(key string, entry models.ModificationEntry) (int, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to encode modification: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"modifications", "modification_history"} {
		_, err := tx.Exec(s.q(`INSERT INTO `+table+` (id, record_key, entry, created_at) VALUES (?, ?, ?, ?)`),
			entry.ID, key, string(payload), entry.Timestamp)
		if err != nil {
			slog.Error(s.name+" AppendModification insert failed", "error", err, "key", key, "table", table)
			return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	var count int
	if err := tx.QueryRow(s.q(`SELECT COUNT(*) FROM modifications WHERE record_key = ?`), key).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count modifications: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit modification: %w", err)
	}
	slog.Debug(s.name+" AppendModification succeeded", "key", key, "id", entry.ID, "pending", count)
	return count, nil
}

// ListModifications returns pending entries, oldest first.
func (s *sqlStore) ListModifications(key string) ([]models.ModificationEntry, error) {
	return s.listEntries("modifications", key)
}

// ListModificationHistory returns every recorded entry, oldest first.
func (s *sqlStore) ListModificationHistory(key string) ([]models.ModificationEntry, error) {
	return s.listEntries("modification_history", key)
}

func (s *sqlStore) listEntries(table, key string) ([]models.ModificationEntry, error) {
	rows, err := s.db.Query(s.q(`SELECT entry FROM `+table+` WHERE record_key = ? ORDER BY created_at, seq`), key)
	if err != nil {
		slog.Error(s.name+" listEntries query failed", "error", err, "table", table, "key", key)
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var entries []models.ModificationEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		var e models.ModificationEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			slog.Warn(s.name+" listEntries skipping undecodable entry", "error", err, "table", table, "key", key)
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return entries, nil
}

// ClearModifications deletes the listed pending entries of key. History is kept.
func (s *sqlStore) ClearModifications(key string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, key)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	res, err := s.db.Exec(s.q(`DELETE FROM modifications WHERE record_key = ? AND id IN (`+placeholders+`)`), args...)
	if err != nil {
		slog.Error(s.name+" ClearModifications failed", "error", err, "key", key)
		return fmt.Errorf("failed to clear modifications for %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	slog.Debug(s.name+" ClearModifications succeeded", "key", key, "requested", len(ids), "deleted", n)
	return nil
}

// PendingCounts groups the pending log by key.
func (s *sqlStore) PendingCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT record_key, COUNT(*) FROM modifications GROUP BY record_key`)
	if err != nil {
		slog.Error(s.name+" PendingCounts query failed", "error", err)
		return nil, fmt.Errorf("failed to count pending modifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan pending count: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending counts: %w", err)
	}
	return counts, nil
}

func (s *sqlStore) GetBusinessTemplate(businessID string) (*models.BusinessTemplate, error) {
	var t models.BusinessTemplate
	err := s.db.QueryRow(s.q(`SELECT business_id, modification_analyzer_prompt, next_iteration_prompt, trainer_prompt
		FROM business_templates WHERE business_id = ?`), businessID).
		Scan(&t.BusinessID, &t.ModificationAnalyzerPrompt, &t.NextIterationPrompt, &t.TrainerPrompt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetBusinessTemplate failed", "error", err, "businessID", businessID)
		return nil, fmt.Errorf("failed to load business template %s: %w", businessID, err)
	}
	return &t, nil
}

func (s *sqlStore) SaveBusinessTemplate(t models.BusinessTemplate) error {
	_, err := s.db.Exec(s.q(`
		INSERT INTO business_templates (business_id, modification_analyzer_prompt, next_iteration_prompt, trainer_prompt, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (business_id) DO UPDATE SET
			modification_analyzer_prompt = excluded.modification_analyzer_prompt,
			next_iteration_prompt = excluded.next_iteration_prompt,
			trainer_prompt = excluded.trainer_prompt,
			updated_at = excluded.updated_at`),
		t.BusinessID, t.ModificationAnalyzerPrompt, t.NextIterationPrompt, t.TrainerPrompt, time.Now())
	if err != nil {
		slog.Error(s.name+" SaveBusinessTemplate failed", "error", err, "businessID", t.BusinessID)
		return fmt.Errorf("failed to save business template %s: %w", t.BusinessID, err)
	}
	return nil
}

const leadColumns = `id, name, phone, address, budget, excavation, pool_dimensions, parcel_dimensions,
	coronation, interior, source, status, created_at, updated_at`

func (s *sqlStore) GetLead(id string) (*models.Lead, error) {
	var l models.Lead
	err := s.db.QueryRow(s.q(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id).Scan(
		&l.ID, &l.Name, &l.Phone, &l.Address, &l.Budget, &l.Excavation, &l.PoolDimensions, &l.ParcelDimensions,
		&l.Coronation, &l.Interior, &l.Source, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug(s.name+" GetLead not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetLead failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load lead %s: %w", id, err)
	}
	return &l, nil
}

func (s *sqlStore) SaveLead(l models.Lead) error {
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	_, err := s.db.Exec(s.q(`
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, phone = excluded.phone, address = excluded.address, budget = excluded.budget,
			excavation = excluded.excavation, pool_dimensions = excluded.pool_dimensions,
			parcel_dimensions = excluded.parcel_dimensions, coronation = excluded.coronation,
			interior = excluded.interior, source = excluded.source, status = excluded.status,
			updated_at = excluded.updated_at`),
		l.ID, l.Name, l.Phone, l.Address, l.Budget, l.Excavation, l.PoolDimensions, l.ParcelDimensions,
		l.Coronation, l.Interior, l.Source, l.Status, l.CreatedAt, now)
	if err != nil {
		slog.Error(s.name+" SaveLead failed", "error", err, "id", l.ID)
		return fmt.Errorf("failed to save lead %s: %w", l.ID, err)
	}
	slog.Debug(s.name+" SaveLead succeeded", "id", l.ID)
	return nil
}

func (s *sqlStore) UpdateLeadBudget(id string, budget int64) error {
	res, err := s.db.Exec(s.q(`UPDATE leads SET budget = ?, status = ?, updated_at = ? WHERE id = ?`),
		budget, models.LeadStatusBudgeted, time.Now(), id)
	if err != nil {
		slog.Error(s.name+" UpdateLeadBudget failed", "error", err, "id", id)
		return fmt.Errorf("failed to update budget for lead %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.Debug(s.name+" UpdateLeadBudget succeeded", "id", id, "budget", budget)
	return nil
}

func (s *sqlStore) IsDeactivated(phone string) (bool, error) {
	var one int
	err := s.db.QueryRow(s.q(`SELECT 1 FROM deactivated_numbers WHERE phone = ?`), phone).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error(s.name+" IsDeactivated failed", "error", err, "phone", phone)
		return false, fmt.Errorf("failed to check deactivated number: %w", err)
	}
	return true, nil
}

func (s *sqlStore) SetDeactivated(phone string, deactivated bool) error {
	var err error
	if deactivated {
		_, err = s.db.Exec(s.q(`INSERT INTO deactivated_numbers (phone, created_at) VALUES (?, ?) ON CONFLICT (phone) DO NOTHING`), phone, time.Now())
	} else {
		_, err = s.db.Exec(s.q(`DELETE FROM deactivated_numbers WHERE phone = ?`), phone)
	}
	if err != nil {
		slog.Error(s.name+" SetDeactivated failed", "error", err, "phone", phone, "deactivated", deactivated)
		return fmt.Errorf("failed to update deactivated number: %w", err)
	}
	slog.Info(s.name+" SetDeactivated succeeded", "phone", phone, "deactivated", deactivated)
	return nil
}

func (s *sqlStore) GetSetting(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(s.q(`SELECT value FROM settings WHERE setting_key = ?`), key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error(s.name+" GetSetting failed", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to load setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *sqlStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(s.q(`INSERT INTO settings (setting_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`), key, value, time.Now())
	if err != nil {
		slog.Error(s.name+" SetSetting failed", "error", err, "key", key)
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	slog.Debug(s.name+" SetSetting succeeded", "key", key)
	return nil
}
