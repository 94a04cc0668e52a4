// Package store provides storage backends for TalkyTrainer.
//
// It includes an in-memory store for tests and development, and SQL-backed
// stores for SQLite and PostgreSQL selected by DSN.
package store

import (
	"errors"
	"strings"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// ErrNotFound is returned by updates that target a missing record.
var ErrNotFound = errors.New("record not found")

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// FlowStateStore persists per-subject session state.
type FlowStateStore interface {
	SaveFlowState(state models.FlowState) error
	// GetFlowState returns nil, nil when no state is stored.
	GetFlowState(participantID string, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(participantID string, flowType models.FlowType) error
}

// PromptRecordStore persists prompt records keyed by subject or business id.
type PromptRecordStore interface {
	// GetPromptRecord returns nil, nil when no record is stored.
	GetPromptRecord(key string) (*models.PromptRecord, error)
	SavePromptRecord(record models.PromptRecord) error
}

// ModificationStore persists the pending modification log and its immutable history.
type ModificationStore interface {
	// AppendModification adds the entry to the pending log and to the history
	// and returns the pending count after the append.
	AppendModification(key string, entry models.ModificationEntry) (int, error)
	ListModifications(key string) ([]models.ModificationEntry, error)
	// ClearModifications removes the given entries from the pending log. Entries
	// appended after they were read stay pending. History is kept.
	ClearModifications(key string, ids []string) error
	ListModificationHistory(key string) ([]models.ModificationEntry, error)
	// PendingCounts returns the pending entry count of every key that has one.
	PendingCounts() (map[string]int, error)
}

// TemplateStore persists business templates.
type TemplateStore interface {
	// GetBusinessTemplate returns nil, nil when no template is stored.
	GetBusinessTemplate(businessID string) (*models.BusinessTemplate, error)
	SaveBusinessTemplate(t models.BusinessTemplate) error
}

// LeadStore persists leads.
type LeadStore interface {
	// GetLead returns nil, nil when the lead does not exist.
	GetLead(id string) (*models.Lead, error)
	SaveLead(lead models.Lead) error
	// UpdateLeadBudget returns ErrNotFound when the lead does not exist.
	UpdateLeadBudget(id string, budget int64) error
}

// DenylistStore tracks deactivated phone numbers.
type DenylistStore interface {
	IsDeactivated(phone string) (bool, error)
	SetDeactivated(phone string, deactivated bool) error
}

// SettingsStore persists simple key/value settings.
type SettingsStore interface {
	// GetSetting reports false when the key is not set.
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
}

// Store is the full record store used by TalkyTrainer.
type Store interface {
	FlowStateStore
	PromptRecordStore
	ModificationStore
	TemplateStore
	LeadStore
	DenylistStore
	SettingsStore
	DedupStore
	Close() error
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// key=value connection strings
	for _, kw := range []string{"host=", "dbname=", "user="} {
		if strings.Contains(dsn, kw) {
			return "postgres"
		}
	}
	return "sqlite3"
}

// New opens the store selected by the configured DSN. An empty DSN yields an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
