// Package relay watches the designated WhatsApp group for budget replies to
// quoted lead summaries, records the budget and forwards it to the customer.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/events"
	"github.com/BTreeMap/TalkyTrainer/internal/messaging"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/objectstore"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("relay manager already started")

// CompletionMarker is sent after the summary and images.
const CompletionMarker = "✅ Presupuesto enviado"

// DefaultImageLimit bounds how many archived images are forwarded per budget.
const DefaultImageLimit = 10

// Source is the part of the messaging service the relay listens on.
type Source interface {
	Subscribe(handler messaging.InboundHandler) uint32
	Unsubscribe(id uint32) bool
	GroupName(ctx context.Context, chat string) (string, error)
}

// Opts holds configuration for the relay manager.
type Opts struct {
	GroupJID   string
	GroupName  string
	ImageLimit int
}

// Option defines a configuration option for the relay manager.
type Option func(*Opts)

// WithGroupJID selects the relay group by chat id.
func WithGroupJID(jid string) Option {
	return func(o *Opts) {
		o.GroupJID = jid
	}
}

// WithGroupName selects the relay group by display name, compared case-insensitively.
func WithGroupName(name string) Option {
	return func(o *Opts) {
		o.GroupName = name
	}
}

// WithImageLimit sets how many images are forwarded per budget.
func WithImageLimit(n int) Option {
	return func(o *Opts) {
		o.ImageLimit = n
	}
}

// Result describes one processed budget reply.
type Result struct {
	LeadID  string
	Phone   string
	Budget  int64
	Images  int
	Created bool
}

// Manager owns the group subscription. Create one per process.
type Manager struct {
	source    Source
	leads     store.LeadStore
	media     objectstore.Store
	notifier  Notifier
	publisher events.Publisher
	cfg       Opts

	mu      sync.Mutex
	started bool
	subID   uint32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	namesMu sync.Mutex
	names   map[string]string // chat -> group name
}

// NewManager creates a relay manager. media and publisher may be nil.
func NewManager(source Source, leads store.LeadStore, media objectstore.Store, notifier Notifier, publisher events.Publisher, opts ...Option) *Manager {
	cfg := Opts{ImageLimit: DefaultImageLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ImageLimit < 1 {
		cfg.ImageLimit = DefaultImageLimit
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Manager{
		source:    source,
		leads:     leads,
		media:     media,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		names:     make(map[string]string),
	}
}

// Start subscribes to inbound messages. It fails with ErrAlreadyStarted if already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	if m.cfg.GroupJID == "" && m.cfg.GroupName == "" {
		slog.Warn("Relay Start no group configured, budget replies will be ignored")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.subID = m.source.Subscribe(m.onMessage)
	m.started = true
	slog.Info("Relay Start subscribed", "groupJID", m.cfg.GroupJID, "groupName", m.cfg.GroupName)
	return nil
}

// Stop unsubscribes and waits for in-flight messages. It is safe to call when not started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.source.Unsubscribe(m.subID)
	m.started = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	slog.Info("Relay Stop unsubscribed")
}

// Started reports whether the manager holds a subscription.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) onMessage(msg models.InboundMessage) {
	if !msg.IsGroup {
		return
	}
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if !m.isRelayGroup(ctx, msg.Chat) {
			return
		}
		slog.Debug("Relay message received", "chat", msg.Chat, "kind", msg.Kind, "quoted", msg.QuotedText != "")
		if _, err := m.Process(ctx, msg); err != nil {
			slog.Debug("Relay message skipped", "chat", msg.Chat, "error", err)
		}
	}()
}

// isRelayGroup matches chat against the configured JID, or else against the group name.
func (m *Manager) isRelayGroup(ctx context.Context, chat string) bool {
	if m.cfg.GroupJID != "" {
		return chat == m.cfg.GroupJID
	}
	if m.cfg.GroupName == "" {
		return false
	}
	m.namesMu.Lock()
	defer m.namesMu.Unlock()
	name, ok := m.names[chat]
	if !ok {
		var err error
		name, err = m.source.GroupName(ctx, chat)
		if err != nil {
			slog.Warn("Relay group name lookup failed", "chat", chat, "error", err)
			return false
		}
		m.names[chat] = name
	}
	return strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(m.cfg.GroupName))
}

// Process handles one message from the relay group. Messages that are not
// budget replies to a lead summary return an error and change nothing.
func (m *Manager) Process(ctx context.Context, msg models.InboundMessage) (Result, error) {
	if msg.QuotedText == "" {
		return Result{}, ErrNotQuotedLead
	}
	quoted, err := ParseQuotedLead(msg.QuotedText)
	if err != nil {
		return Result{}, err
	}
	budget, err := ParseBudget(msg.Text)
	if err != nil {
		return Result{}, err
	}

	res, err := m.saveBudget(quoted, budget)
	if err != nil {
		slog.Error("Relay budget persistence failed", "leadID", quoted.ID, "error", err)
		return res, err
	}
	slog.Info("Relay budget recorded", "leadID", res.LeadID, "budget", budget, "created", res.Created)

	images := m.imageURLs(ctx, res.Phone)
	res.Images = len(images)
	m.notify(ctx, res.Phone, quoted, budget, images)

	if err := m.publisher.Publish(events.SubjectBudget, events.BudgetRelayed{
		LeadID:    res.LeadID,
		Phone:     res.Phone,
		Budget:    budget,
		Images:    res.Images,
		Created:   res.Created,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Warn("Relay budget event publish failed", "error", err)
	}
	return res, nil
}

// saveBudget updates the stored lead, creating it from the quoted summary when missing.
func (m *Manager) saveBudget(quoted QuotedLead, budget int64) (Result, error) {
	res := Result{LeadID: quoted.ID, Budget: budget}
	existing, err := m.leads.GetLead(quoted.ID)
	if err != nil {
		return res, fmt.Errorf("failed to load lead: %w", err)
	}
	if existing != nil {
		if err := m.leads.UpdateLeadBudget(quoted.ID, budget); err != nil {
			return res, fmt.Errorf("failed to update budget: %w", err)
		}
		res.Phone = digitsOnly(existing.Phone)
		if res.Phone == "" {
			res.Phone = digitsOnly(quoted.Phone)
		}
		return res, nil
	}

	lead := models.Lead{
		ID:               quoted.ID,
		Name:             quoted.Name,
		Phone:            digitsOnly(quoted.Phone),
		Address:          quoted.Address,
		Budget:           budget,
		Excavation:       quoted.Excavation,
		PoolDimensions:   quoted.PoolDimensions,
		ParcelDimensions: quoted.ParcelDimensions,
		Coronation:       quoted.Coronation,
		Interior:         quoted.Interior,
		Source:           "relay",
		Status:           models.LeadStatusBudgeted,
	}
	if err := m.leads.SaveLead(lead); err != nil {
		return res, fmt.Errorf("failed to create lead: %w", err)
	}
	res.Phone = lead.Phone
	res.Created = true
	return res, nil
}

// imageURLs signs the newest archived images of phone. Failures are logged and skipped.
func (m *Manager) imageURLs(ctx context.Context, phone string) []string {
	if m.media == nil || phone == "" {
		return nil
	}
	keys, err := m.media.ListRecent(ctx, phone, objectstore.KindImage, m.cfg.ImageLimit)
	if err != nil {
		slog.Error("Relay image listing failed", "phone", phone, "error", err)
		return nil
	}
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		url, err := m.media.SignedURL(ctx, key)
		if err != nil {
			slog.Error("Relay image signing failed", "key", key, "error", err)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

// notify sends the summary, each image and the completion marker. Every send is independent.
func (m *Manager) notify(ctx context.Context, phone string, quoted QuotedLead, budget int64, images []string) {
	if m.notifier == nil {
		return
	}
	if phone == "" {
		slog.Warn("Relay lead has no phone, notifications skipped", "leadID", quoted.ID)
		return
	}
	if err := m.notifier.SendMessage(ctx, phone, FormatSummary(quoted, budget)); err != nil {
		slog.Error("Relay summary notification failed", "phone", phone, "error", err)
	}
	for _, url := range images {
		if err := m.notifier.SendMedia(ctx, phone, "", url); err != nil {
			slog.Error("Relay image notification failed", "phone", phone, "error", err)
		}
	}
	if err := m.notifier.SendMessage(ctx, phone, CompletionMarker); err != nil {
		slog.Error("Relay completion notification failed", "phone", phone, "error", err)
	}
}

// FormatSummary renders the customer-facing budget message.
func FormatSummary(quoted QuotedLead, budget int64) string {
	var b strings.Builder
	b.WriteString("*Presupuesto para tu proyecto de piscina*\n")
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "\n%s: %s", label, value)
		}
	}
	line("Proyecto", quoted.ID)
	line("Dirección", quoted.Address)
	line("Excavación", quoted.Excavation)
	if quoted.PoolDimensions != "" {
		line("Medidas piscina", quoted.PoolDimensions+" metros")
	}
	if quoted.ParcelDimensions != "" {
		line("Parcela", quoted.ParcelDimensions+" m²")
	}
	line("Coronación", quoted.Coronation)
	line("Interior", quoted.Interior)
	fmt.Fprintf(&b, "\n\nPresupuesto: %s €", formatThousands(budget))
	return b.String()
}

// formatThousands groups digits with dots, e.g. 15000 -> "15.000".
func formatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
