package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/TalkyTrainer/internal/api"
	"github.com/BTreeMap/TalkyTrainer/internal/flow"
	"github.com/BTreeMap/TalkyTrainer/internal/genai"
	"github.com/BTreeMap/TalkyTrainer/internal/lockfile"
	"github.com/BTreeMap/TalkyTrainer/internal/objectstore"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
	"github.com/BTreeMap/TalkyTrainer/internal/twiliowhatsapp"
	"github.com/BTreeMap/TalkyTrainer/internal/util"
	"github.com/BTreeMap/TalkyTrainer/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TalkyTrainer state data
	DefaultStateDir = "/var/lib/talkytrainer"
	// DefaultAppDBFileName is the default SQLite file of the record store
	DefaultAppDBFileName = "talkytrainer.db"
	// DefaultWhatsAppDBFileName is the default SQLite file of the whatsmeow session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	DefaultS3Bucket           = "talky-media"
	DefaultS3Region           = "us-east-1"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mods := api.ModuleOptions{
		WhatsApp:    buildWhatsAppOptions(flags),
		Twilio:      buildTwilioOptions(config),
		Store:       buildStoreOptions(flags),
		GenAI:       buildGenAIOptions(flags),
		ObjectStore: buildObjectStoreOptions(config),
		API:         buildAPIOptions(flags, config),
	}

	slog.Info("Bootstrapping TalkyTrainer with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(mods.WhatsApp), "twilio", len(mods.Twilio), "store", len(mods.Store),
		"genai", len(mods.GenAI), "objectstore", len(mods.ObjectStore), "api", len(mods.API))
	if err := api.Run(ctx, mods); err != nil {
		slog.Error("TalkyTrainer failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("TalkyTrainer exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	OpenAIKey        string
	OpenAIModel      string
	OpenAITemp       float64
	GenAIDebug       bool
	APIAddr          string
	APIToken         string
	MessagingService string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	BusinessID            string
	PromptScope           string
	ModificationThreshold int

	RelayGroupJID    string
	RelayGroupName   string
	RelayTarget      string
	NotifyMessageURL string
	NotifyMediaURL   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	NATSURL   string
	NATSToken string

	SweepSchedule string
	DefaultReply  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         string
	numeric          bool
	stateDir         string
	whatsappDSN      string
	dbDSN            string
	openaiKey        string
	openaiModel      string
	temperature      float64
	genaiDebug       bool
	apiAddr          string
	messagingService string
	businessID       string
	promptScope      string
	threshold        int
}

// initializeLogger installs the default slog logger. Level defaults to debug and format to text.
func initializeLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:              util.GetenvDefault("TALKY_STATE_DIR", DefaultStateDir),
		WhatsAppDBDSN:         os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN:      os.Getenv("DATABASE_URL"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           util.GetenvDefault("OPENAI_MODEL", string(genai.DefaultModel)),
		OpenAITemp:            util.ParseFloatEnv("OPENAI_TEMPERATURE", genai.DefaultTemperature),
		GenAIDebug:            util.ParseBoolEnv("GENAI_DEBUG", false),
		APIAddr:               util.GetenvDefault("API_ADDR", api.DefaultAddr),
		APIToken:              os.Getenv("API_TOKEN"),
		MessagingService:      util.GetenvDefault("MESSAGING_SERVICE", api.ProviderWhatsApp),
		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:            os.Getenv("TWILIO_FROM_NUMBER"),
		BusinessID:            util.GetenvDefault("BUSINESS_ID", flow.DefaultBusinessID),
		PromptScope:           util.GetenvDefault("PROMPT_SCOPE", string(flow.ScopeSubject)),
		ModificationThreshold: util.ParseIntEnv("MODIFICATION_THRESHOLD", flow.DefaultModificationThreshold),
		RelayGroupJID:         os.Getenv("RELAY_GROUP_JID"),
		RelayGroupName:        os.Getenv("RELAY_GROUP_NAME"),
		RelayTarget:           os.Getenv("RELAY_TARGET"),
		NotifyMessageURL:      os.Getenv("NOTIFY_MESSAGE_URL"),
		NotifyMediaURL:        os.Getenv("NOTIFY_MEDIA_URL"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:           os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Bucket:              util.GetenvDefault("S3_BUCKET", DefaultS3Bucket),
		S3Region:              util.GetenvDefault("S3_REGION", DefaultS3Region),
		S3UseSSL:              util.ParseBoolEnv("S3_USE_SSL", true),
		NATSURL:               os.Getenv("NATS_URL"),
		NATSToken:             os.Getenv("NATS_TOKEN"),
		SweepSchedule:         util.GetenvDefault("SWEEP_SCHEDULE", api.DefaultSweepSchedule),
		DefaultReply:          os.Getenv("DEFAULT_REPLY"),
	}

	// The whatsmeow session shares DATABASE_URL unless given its own DSN.
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = config.ApplicationDBDSN
	}

	slog.Debug("environment variables loaded",
		"TALKY_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_URL_SET", config.ApplicationDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"OPENAI_TEMPERATURE", config.OpenAITemp,
		"API_ADDR", config.APIAddr,
		"MESSAGING_SERVICE", config.MessagingService,
		"BUSINESS_ID", config.BusinessID,
		"PROMPT_SCOPE", config.PromptScope,
		"S3_ENDPOINT", config.S3Endpoint,
		"NATS_URL_SET", config.NATSURL != "")

	return config
}

// parseCommandLineFlags parses args with environment defaults. File-based DSNs
// left empty are placed in the (possibly overridden) state directory.
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("TalkyTrainer", flag.ContinueOnError)
	fs.StringVar(&flags.qrOutput, "qr-output", "", "path to write login QR code")
	fs.BoolVar(&flags.numeric, "numeric-code", false, "use numeric login code instead of QR code")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for TalkyTrainer data (overrides $TALKY_STATE_DIR)")
	fs.StringVar(&flags.whatsappDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.ApplicationDBDSN, "record store DSN, Postgres or SQLite (overrides $DATABASE_URL)")
	fs.StringVar(&flags.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.openaiModel, "openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.Float64Var(&flags.temperature, "openai-temperature", config.OpenAITemp, "default sampling temperature, 0 to 2 (overrides $OPENAI_TEMPERATURE)")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "dump every generation call under <state-dir>/debug (overrides $GENAI_DEBUG)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.messagingService, "messaging-service", config.MessagingService, "messaging provider: whatsapp or twilio (overrides $MESSAGING_SERVICE)")
	fs.StringVar(&flags.businessID, "business-id", config.BusinessID, "business template key (overrides $BUSINESS_ID)")
	fs.StringVar(&flags.promptScope, "prompt-scope", config.PromptScope, "prompt scope: subject or business (overrides $PROMPT_SCOPE)")
	fs.IntVar(&flags.threshold, "modification-threshold", config.ModificationThreshold, "pending modifications that trigger a regeneration (overrides $MODIFICATION_THRESHOLD)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if flags.dbDSN == "" {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultAppDBFileName)
	}
	if flags.whatsappDSN == "" {
		flags.whatsappDSN = "file:" + filepath.Join(flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if flags.threshold < 1 {
		return Flags{}, fmt.Errorf("modification threshold must be at least 1, got %d", flags.threshold)
	}
	if flags.temperature < 0 || flags.temperature > 2 {
		return Flags{}, fmt.Errorf("temperature must be between 0 and 2, got %g", flags.temperature)
	}

	slog.Debug("flags parsed",
		"qrOutput", flags.qrOutput,
		"numeric", flags.numeric,
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"openaiKeySet", flags.openaiKey != "",
		"apiAddr", flags.apiAddr,
		"messagingService", flags.messagingService,
		"threshold", flags.threshold)

	return flags, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(flags.whatsappDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(flags.dbDSN)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{genai.WithTemperature(flags.temperature)}
	if flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openaiKey))
	}
	if flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.openaiModel))
	}
	if flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true), genai.WithStateDir(flags.stateDir))
	}
	return genaiOpts
}

// buildObjectStoreOptions constructs media archive options. No endpoint keeps media in memory.
func buildObjectStoreOptions(config Config) []objectstore.Option {
	if config.S3Endpoint == "" {
		return nil
	}
	return []objectstore.Option{
		objectstore.WithEndpoint(config.S3Endpoint),
		objectstore.WithCredentials(config.S3AccessKey, config.S3SecretKey),
		objectstore.WithBucket(config.S3Bucket),
		objectstore.WithRegion(config.S3Region),
		objectstore.WithSSL(config.S3UseSSL),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	apiOpts := []api.Option{
		api.WithProvider(flags.messagingService),
		api.WithBusinessID(flags.businessID),
		api.WithPromptScope(flow.ParsePromptScope(flags.promptScope)),
		api.WithThreshold(flags.threshold),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	if config.APIToken != "" {
		apiOpts = append(apiOpts, api.WithAPIToken(config.APIToken))
	}
	if config.RelayGroupJID != "" || config.RelayGroupName != "" {
		apiOpts = append(apiOpts, api.WithRelayGroup(config.RelayGroupJID, config.RelayGroupName))
	}
	if config.RelayTarget != "" {
		apiOpts = append(apiOpts, api.WithRelayTarget(config.RelayTarget))
	}
	if config.NotifyMessageURL != "" || config.NotifyMediaURL != "" {
		apiOpts = append(apiOpts, api.WithNotifyURLs(config.NotifyMessageURL, config.NotifyMediaURL))
	}
	if config.NATSURL != "" {
		apiOpts = append(apiOpts, api.WithNATS(config.NATSURL, config.NATSToken))
	}
	if config.DefaultReply != "" {
		apiOpts = append(apiOpts, api.WithDefaultReply(config.DefaultReply))
	}
	if strings.EqualFold(config.SweepSchedule, "off") {
		apiOpts = append(apiOpts, api.WithSweepSchedule(""))
	} else if config.SweepSchedule != "" {
		apiOpts = append(apiOpts, api.WithSweepSchedule(config.SweepSchedule))
	}
	return apiOpts
}
