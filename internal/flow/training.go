package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/events"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// Training commands, compared after trimming and lowercasing.
const (
	CommandStartTraining = "entrenar"
	CommandStopTraining  = "salir"
)

// Fixed replies sent by the training flow.
const (
	WelcomeMessage = "🤖 *Modo de Entrenamiento Iniciado*\n\nPuedes interactuar normalmente con el bot o sugerir modificaciones.\nPara salir, simplemente escribe \"salir\".\n\n¿En qué puedo ayudarte?"
	GoodbyeMessage = "✅ Entrenamiento finalizado.\nTodas las modificaciones han sido guardadas.\n¡Hasta pronto!"
	ErrorMessage   = "Ha ocurrido un error. Por favor, intenta de nuevo."
	ackTemplate    = "✅ He detectado una sugerencia de modificación:\nTipo: %s\nDescripción: %s\n\nLa modificación ha sido registrada. ¿Hay algo más en lo que pueda ayudarte?"
)

// PromptScope selects whose prompt a training session edits.
type PromptScope string

const (
	ScopeSubject  PromptScope = "subject"
	ScopeBusiness PromptScope = "business"
)

// ParsePromptScope returns ScopeBusiness for "business" and ScopeSubject otherwise.
func ParsePromptScope(s string) PromptScope {
	if strings.EqualFold(strings.TrimSpace(s), string(ScopeBusiness)) {
		return ScopeBusiness
	}
	return ScopeSubject
}

// DefaultBusinessID is the template key used when none is configured.
const DefaultBusinessID = "default"

// TrainingStore is the subset of the record store used by the training flow.
type TrainingStore interface {
	store.PromptRecordStore
	store.ModificationStore
	store.TemplateStore
	store.DenylistStore
	store.SettingsStore
}

// Dependencies holds the collaborators of a TrainingFlow.
type Dependencies struct {
	StateManager StateManager
	Store        TrainingStore
	Sender       Sender
	Generator    TextGenerator
	Publisher    events.Publisher // optional
}

// Opts configures a TrainingFlow.
type Opts struct {
	Scope      PromptScope
	BusinessID string
	Threshold  int
}

// Option defines a configuration option for the training flow.
type Option func(*Opts)

// WithPromptScope sets whether prompts are kept per subject or per business.
func WithPromptScope(scope PromptScope) Option {
	return func(o *Opts) {
		o.Scope = scope
	}
}

// WithBusinessID sets the business whose templates are used.
func WithBusinessID(id string) Option {
	return func(o *Opts) {
		o.BusinessID = id
	}
}

// WithThreshold sets the pending count that triggers regeneration.
func WithThreshold(n int) Option {
	return func(o *Opts) {
		o.Threshold = n
	}
}

// TrainingFlow is the IDLE/TRAINING state machine driven by direct messages.
type TrainingFlow struct {
	stateManager StateManager
	store        TrainingStore
	sender       Sender
	publisher    events.Publisher

	templates   *Templates
	prompts     *PromptStore
	mods        *ModificationLog
	classifier  *Classifier
	generator   *ResponseGenerator
	regenerator *PromptRegenerator
	locks       *subjectLocks

	scope      PromptScope
	businessID string

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTrainingFlow wires a TrainingFlow from deps.
func NewTrainingFlow(deps Dependencies, opts ...Option) *TrainingFlow {
	cfg := Opts{Scope: ScopeSubject, BusinessID: DefaultBusinessID, Threshold: DefaultModificationThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BusinessID == "" {
		cfg.BusinessID = DefaultBusinessID
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}

	templates := NewTemplates(deps.Store)
	prompts := NewPromptStore(deps.Store)
	mods := NewModificationLog(deps.Store, cfg.Threshold)

	return &TrainingFlow{
		stateManager: deps.StateManager,
		store:        deps.Store,
		sender:       deps.Sender,
		publisher:    publisher,
		templates:    templates,
		prompts:      prompts,
		mods:         mods,
		classifier:   NewClassifier(deps.Generator, templates),
		generator:    NewResponseGenerator(deps.Generator, prompts, templates),
		regenerator:  NewPromptRegenerator(deps.Generator, prompts, mods, templates, publisher),
		locks:        newSubjectLocks(),
		scope:        cfg.Scope,
		businessID:   cfg.BusinessID,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prompts returns the prompt store used by the flow.
func (f *TrainingFlow) Prompts() *PromptStore { return f.prompts }

// Modifications returns the modification log used by the flow.
func (f *TrainingFlow) Modifications() *ModificationLog { return f.mods }

// Regenerator returns the prompt regenerator used by the flow.
func (f *TrainingFlow) Regenerator() *PromptRegenerator { return f.regenerator }

// Templates returns the template resolver used by the flow.
func (f *TrainingFlow) Templates() *Templates { return f.templates }

// BusinessID returns the configured business id.
func (f *TrainingFlow) BusinessID() string { return f.businessID }

// PromptKey returns the prompt record key for subject.
func (f *TrainingFlow) PromptKey(subject string) string {
	if f.scope == ScopeBusiness {
		return f.businessID
	}
	return subject
}

// RecoverState regenerates every prompt whose pending log reached the
// threshold without a successful regeneration. It runs at startup and on the
// sweep schedule.
func (f *TrainingFlow) RecoverState(ctx context.Context) error {
	keys, err := f.mods.Overdue()
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := f.regenerator.Regenerate(ctx, key, f.businessID); err != nil {
			slog.Error("TrainingFlow RecoverState regeneration failed", "error", err, "key", key)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		slog.Info("TrainingFlow RecoverState prompt regenerated", "key", key)
	}
	return errors.Join(errs...)
}

// Handle processes one message from subject. handled is false only when the
// subject is idle and the message is not a training command.
func (f *TrainingFlow) Handle(ctx context.Context, subject, text string) (bool, error) {
	deactivated, err := f.store.IsDeactivated(subject)
	if err != nil {
		slog.Error("TrainingFlow Handle denylist lookup failed", "error", err, "subject", subject)
	} else if deactivated {
		slog.Debug("TrainingFlow Handle subject deactivated", "subject", subject)
		return true, nil
	}

	unlock := f.locks.Lock(subject)
	defer unlock()

	state, err := f.stateManager.GetCurrentState(ctx, subject, models.FlowTypeTraining)
	if err != nil {
		slog.Error("TrainingFlow Handle state lookup failed", "error", err, "subject", subject)
		f.sendError(ctx, subject)
		return true, nil
	}
	command := strings.ToLower(strings.TrimSpace(text))

	if state != models.StateTraining {
		if command != CommandStartTraining {
			return false, nil
		}
		return true, f.startTraining(ctx, subject)
	}
	if command == CommandStopTraining {
		return true, f.stopTraining(ctx, subject)
	}
	if err := f.train(ctx, subject, text); err != nil {
		slog.Error("TrainingFlow Handle training turn failed", "error", err, "subject", subject)
		f.sendError(ctx, subject)
	}
	return true, nil
}

func (f *TrainingFlow) startTraining(ctx context.Context, subject string) error {
	err := f.stateManager.StartState(ctx, subject, models.FlowTypeTraining, models.StateTraining,
		map[models.DataKey]string{models.DataKeyConversation: "[]"})
	if err != nil {
		slog.Error("TrainingFlow startTraining failed", "error", err, "subject", subject)
		f.sendError(ctx, subject)
		return nil
	}
	if err := f.sender.SendMessage(ctx, subject, WelcomeMessage); err != nil {
		slog.Error("TrainingFlow startTraining welcome send failed", "error", err, "subject", subject)
	}
	slog.Info("TrainingFlow training started", "subject", subject)
	return nil
}

func (f *TrainingFlow) stopTraining(ctx context.Context, subject string) error {
	if err := f.sender.SendMessage(ctx, subject, GoodbyeMessage); err != nil {
		slog.Error("TrainingFlow stopTraining goodbye send failed", "error", err, "subject", subject)
	}
	if err := f.stateManager.ResetState(ctx, subject, models.FlowTypeTraining); err != nil {
		slog.Error("TrainingFlow stopTraining reset failed", "error", err, "subject", subject)
		f.sendError(ctx, subject)
		return nil
	}
	slog.Info("TrainingFlow training stopped", "subject", subject)
	return nil
}

// train runs one TRAINING turn. The conversation is persisted only when every step succeeded.
func (f *TrainingFlow) train(ctx context.Context, subject, text string) error {
	conversation, err := f.loadConversation(ctx, subject)
	if err != nil {
		return err
	}
	conversation = append(conversation, models.ConversationTurn{Role: models.RoleUser, Content: text})
	key := f.PromptKey(subject)

	result := f.classifier.Classify(ctx, f.businessID, conversation)
	if result.Outcome == models.ClassificationFailed {
		slog.Warn("TrainingFlow classification failed, treating as conversation", "error", result.Err, "subject", subject)
	}

	if result.IsModification() {
		entry, pending, err := f.mods.Append(key, *result.Entry)
		if err != nil {
			return err
		}
		f.applyDelay(entry)
		f.publishModification(key, subject, entry, pending)
		if f.mods.ShouldRegenerate(pending) {
			if _, err := f.regenerator.Regenerate(ctx, key, f.businessID); err != nil {
				slog.Error("TrainingFlow regeneration failed", "error", err, "key", key)
			}
		}
		if err := f.sender.SendMessage(ctx, subject, fmt.Sprintf(ackTemplate, typeLabel(entry.Type), entry.Description)); err != nil {
			return fmt.Errorf("failed to send acknowledgment: %w", err)
		}
		conversation = append(conversation, models.ConversationTurn{
			Role:    models.RoleAssistant,
			Content: "Modificación registrada: " + entry.Description,
		})
		return f.saveConversation(ctx, subject, conversation)
	}

	reply := f.generator.Generate(ctx, key, f.businessID, conversation)
	if delay := f.responseDelay(); delay > 0 {
		if err := f.sleep(ctx, delay); err != nil {
			return fmt.Errorf("response delay interrupted: %w", err)
		}
	}
	if err := f.sender.SendMessage(ctx, subject, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	conversation = append(conversation, models.ConversationTurn{Role: models.RoleAssistant, Content: reply})
	return f.saveConversation(ctx, subject, conversation)
}

func (f *TrainingFlow) loadConversation(ctx context.Context, subject string) ([]models.ConversationTurn, error) {
	raw, err := f.stateManager.GetStateData(ctx, subject, models.FlowTypeTraining, models.DataKeyConversation)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var conversation []models.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &conversation); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return conversation, nil
}

func (f *TrainingFlow) saveConversation(ctx context.Context, subject string, conversation []models.ConversationTurn) error {
	b, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := f.stateManager.SetStateData(ctx, subject, models.FlowTypeTraining, models.DataKeyConversation, string(b)); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// applyDelay stores the entry's response delay, if any.
func (f *TrainingFlow) applyDelay(entry models.ModificationEntry) {
	if entry.DelayTime == nil {
		return
	}
	value := strconv.FormatFloat(*entry.DelayTime, 'f', -1, 64)
	if err := f.store.SetSetting(models.SettingResponseDelay, value); err != nil {
		slog.Error("TrainingFlow response delay update failed", "error", err, "value", value)
		return
	}
	slog.Info("TrainingFlow response delay updated", "seconds", value)
}

// responseDelay returns the stored delay, or zero when unset or invalid.
func (f *TrainingFlow) responseDelay() time.Duration {
	value, ok, err := f.store.GetSetting(models.SettingResponseDelay)
	if err != nil {
		slog.Warn("TrainingFlow response delay lookup failed", "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func (f *TrainingFlow) publishModification(key, subject string, entry models.ModificationEntry, pending int) {
	err := f.publisher.Publish(events.SubjectModification, events.ModificationRecorded{
		PromptKey:        key,
		Subject:          subject,
		ModificationID:   entry.ID,
		ModificationType: string(entry.Type),
		Severity:         string(entry.Severity),
		Description:      entry.Description,
		Pending:          pending,
		Timestamp:        entry.Timestamp,
	})
	if err != nil {
		slog.Warn("TrainingFlow modification event publish failed", "error", err)
	}
}

func (f *TrainingFlow) sendError(ctx context.Context, subject string) {
	if err := f.sender.SendMessage(ctx, subject, ErrorMessage); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("TrainingFlow error reply failed", "error", err, "subject", subject)
	}
}

// typeLabel returns the Spanish name shown to trainers.
func typeLabel(t models.ModificationType) string {
	switch t {
	case models.ModificationBehavior:
		return "comportamiento"
	case models.ModificationFlow:
		return "flujo"
	case models.ModificationResponses:
		return "respuestas"
	default:
		return "otro"
	}
}
