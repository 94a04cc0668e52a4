// Package api wires the TalkyTrainer modules together and serves the HTTP API.
//
// Run bootstraps the record store, the OpenAI client, the media archive, the
// event bus, the messaging provider, the training flow and the group relay,
// then serves the relay and admin endpoints until the context is cancelled.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/TalkyTrainer/internal/events"
	"github.com/BTreeMap/TalkyTrainer/internal/flow"
	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/intake"
	"github.com/BTreeMap/TalkyTrainer/internal/messaging"
	"github.com/BTreeMap/TalkyTrainer/internal/objectstore"
	"github.com/BTreeMap/TalkyTrainer/internal/recovery"
	"github.com/BTreeMap/TalkyTrainer/internal/relay"
	"github.com/BTreeMap/TalkyTrainer/internal/scheduler"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
	"github.com/BTreeMap/TalkyTrainer/internal/twiliowhatsapp"
	"github.com/BTreeMap/TalkyTrainer/internal/whatsapp"
)

// Default API configuration values.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSweepSchedule   = "*/15 * * * *"
)

// Messaging providers.
const (
	ProviderWhatsApp = "whatsapp"
	ProviderTwilio   = "twilio"
)

// Opts holds configuration for the API server and the flows it hosts.
type Opts struct {
	Addr             string
	Provider         string
	APIToken         string
	BusinessID       string
	PromptScope      flow.PromptScope
	Threshold        int
	RelayGroupJID    string
	RelayGroupName   string
	RelayTarget      string
	NotifyMessageURL string
	NotifyMediaURL   string
	NATSURL          string
	NATSToken        string
	SweepSchedule    string // cron expression of the recovery sweep; empty disables it
	DefaultReply     string // sent to idle subjects whose message no action handled; empty stays silent
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithProvider selects the messaging provider ("whatsapp" or "twilio").
func WithProvider(provider string) Option {
	return func(o *Opts) {
		o.Provider = provider
	}
}

// WithAPIToken protects the admin and relay endpoints with a bearer token.
func WithAPIToken(token string) Option {
	return func(o *Opts) {
		o.APIToken = token
	}
}

// WithBusinessID sets the business template key.
func WithBusinessID(id string) Option {
	return func(o *Opts) {
		o.BusinessID = id
	}
}

// WithPromptScope selects per-subject or per-business prompts.
func WithPromptScope(scope flow.PromptScope) Option {
	return func(o *Opts) {
		o.PromptScope = scope
	}
}

// WithThreshold sets the modification count that triggers regeneration.
func WithThreshold(n int) Option {
	return func(o *Opts) {
		o.Threshold = n
	}
}

// WithRelayGroup selects the relay group by JID and/or display name.
func WithRelayGroup(jid, name string) Option {
	return func(o *Opts) {
		o.RelayGroupJID = jid
		o.RelayGroupName = name
	}
}

// WithRelayTarget sets the default recipient of POST /relay.
func WithRelayTarget(target string) Option {
	return func(o *Opts) {
		o.RelayTarget = target
	}
}

// WithNotifyURLs sets the outbound notification endpoints.
func WithNotifyURLs(messageURL, mediaURL string) Option {
	return func(o *Opts) {
		o.NotifyMessageURL = messageURL
		o.NotifyMediaURL = mediaURL
	}
}

// WithNATS enables the event bus.
func WithNATS(url, token string) Option {
	return func(o *Opts) {
		o.NATSURL = url
		o.NATSToken = token
	}
}

// WithSweepSchedule sets the cron expression of the recovery sweep. Empty disables the periodic sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) {
		o.SweepSchedule = expr
	}
}

// WithDefaultReply sets the reply sent when a direct message is not handled.
func WithDefaultReply(text string) Option {
	return func(o *Opts) {
		o.DefaultReply = text
	}
}

// ModuleOptions groups the options of every module Run bootstraps.
type ModuleOptions struct {
	WhatsApp    []whatsapp.Option
	Twilio      []twiliowhatsapp.Option
	Store       []store.Option
	GenAI       []genai.Option
	ObjectStore []objectstore.Option // empty keeps media in memory
	API         []Option
}

// Run bootstraps every module and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, mods ModuleOptions) error {
	cfg := Opts{
		Addr:          DefaultAddr,
		Provider:      ProviderWhatsApp,
		BusinessID:    flow.DefaultBusinessID,
		PromptScope:   flow.ScopeSubject,
		SweepSchedule: DefaultSweepSchedule,
	}
	for _, opt := range mods.API {
		opt(&cfg)
	}
	slog.Debug("API Run configuration", "addr", cfg.Addr, "provider", cfg.Provider, "businessID", cfg.BusinessID,
		"scope", cfg.PromptScope, "threshold", cfg.Threshold, "relay_group_jid", cfg.RelayGroupJID, "relay_group_name", cfg.RelayGroupName)

	st, err := store.New(mods.Store...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore(st)

	gaClient, err := genai.NewClient(mods.GenAI...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	media, err := initializeObjectStore(ctx, mods.ObjectStore)
	if err != nil {
		return err
	}

	publisher := initializePublisher(cfg)
	defer publisher.Close()

	msgService, webhook, disconnect, err := initializeMessaging(ctx, cfg.Provider, mods)
	if err != nil {
		return err
	}
	defer disconnect()
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := msgService.Stop(); err != nil {
			slog.Warn("API Run messaging stop failed", "error", err)
		}
	}()

	training := flow.NewTrainingFlow(flow.Dependencies{
		StateManager: flow.NewStoreBasedStateManager(st),
		Store:        st,
		Sender:       msgService,
		Generator:    gaClient,
		Publisher:    publisher,
	}, flow.WithPromptScope(cfg.PromptScope), flow.WithBusinessID(cfg.BusinessID), flow.WithThreshold(cfg.Threshold))

	recoveryMgr := recovery.NewManager()
	recoveryMgr.Register("training", training)
	if err := recoveryMgr.RecoverAll(ctx); err != nil {
		slog.Warn("API Run startup recovery incomplete", "error", err)
	}
	sched, err := initializeScheduler(cfg.SweepSchedule, recoveryMgr)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	normalizer := intake.NewNormalizer(msgService, media, gaClient)

	respHandler := initializeResponseHandler(msgService, normalizer, st, training, cfg.DefaultReply)
	respHandler.Start(ctx)
	defer respHandler.Stop()

	relayMgr := relay.NewManager(msgService, st, media,
		relay.NewHTTPNotifier(cfg.NotifyMessageURL, cfg.NotifyMediaURL), publisher,
		relay.WithGroupJID(cfg.RelayGroupJID), relay.WithGroupName(cfg.RelayGroupName))
	if err := relayMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	defer relayMgr.Stop()

	server := NewServer(ServerDeps{
		Store:       st,
		Messaging:   msgService,
		Training:    training,
		Relay:       relayMgr,
		Webhook:     webhook,
		RelayTarget: cfg.RelayTarget,
		APIToken:    cfg.APIToken,
		Provider:    cfg.Provider,
	})
	return serve(ctx, cfg.Addr, server)
}

// initializeResponseHandler chains the training flow in front of the default reply.
func initializeResponseHandler(svc messaging.Service, normalizer messaging.Normalizer, dedup store.DedupStore, training *flow.TrainingFlow, defaultReply string) *messaging.ResponseHandler {
	rh := messaging.NewResponseHandler(svc, normalizer, dedup)
	rh.AddAction("training", func(ctx context.Context, from, text string, _ int64) (bool, error) {
		return training.Handle(ctx, from, text)
	})
	if defaultReply != "" {
		rh.SetDefaultMessage(defaultReply)
		slog.Info("API default reply enabled", "length", len(defaultReply))
	}
	return rh
}

// initializeScheduler registers the recovery sweep. An empty expression leaves the scheduler without jobs.
func initializeScheduler(expr string, mgr *recovery.Manager) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler()
	if expr == "" {
		slog.Info("API recovery sweep disabled")
		return sched, nil
	}
	err := sched.AddJob("recovery-sweep", expr, func(ctx context.Context) {
		if err := mgr.RecoverAll(ctx); err != nil {
			slog.Warn("API recovery sweep incomplete", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("API store close failed", "error", err)
	}
}

// initializeObjectStore returns a MinIO-backed archive, or an in-memory one when no options are given.
func initializeObjectStore(ctx context.Context, opts []objectstore.Option) (objectstore.Store, error) {
	if len(opts) == 0 {
		slog.Info("API no S3 endpoint configured, media archive kept in memory")
		return objectstore.NewMemoryStore(), nil
	}
	ms, err := objectstore.NewMinioStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := ms.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare object store bucket: %w", err)
	}
	return ms, nil
}

// initializePublisher connects to NATS when configured. A failed connection degrades to a no-op publisher.
func initializePublisher(cfg Opts) events.Publisher {
	if cfg.NATSURL == "" {
		return events.Noop{}
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSToken, slog.Default())
	if err != nil {
		slog.Error("API NATS connection failed, events disabled", "error", err)
		return events.Noop{}
	}
	return pub
}

// initializeMessaging creates the provider service. For Twilio it also returns the inbound webhook.
func initializeMessaging(ctx context.Context, provider string, mods ModuleOptions) (messaging.Service, http.Handler, func(), error) {
	switch provider {
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(mods.Twilio...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, http.HandlerFunc(svc.WebhookHandler), func() {}, nil
	case ProviderWhatsApp, "":
		client, err := whatsapp.NewClient(ctx, mods.WhatsApp...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, client.Disconnect, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown messaging provider %q", provider)
	}
}
