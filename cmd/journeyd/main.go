package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/emoseum/journey/internal/api"
	"github.com/emoseum/journey/internal/genai"
	"github.com/emoseum/journey/internal/images"
	"github.com/emoseum/journey/internal/journey"
	"github.com/emoseum/journey/internal/lockfile"
	"github.com/emoseum/journey/internal/store"
	"github.com/emoseum/journey/internal/util"
	"github.com/emoseum/journey/internal/webhook"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for journeyd state data
	DefaultStateDir = "/var/lib/journeyd"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "journey.db"
	// DefaultImagesSubdir is the default images directory inside the state directory
	DefaultImagesSubdir = "images"
	// shutdownTimeout bounds graceful HTTP shutdown
	shutdownTimeout = 15 * time.Second
)

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	ImagesDir   string
	SyncURL     string
	OpenAIKey   string
	APIAddr     string
	LogLevel    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	imagesDir *string
	syncURL   *string
	openaiKey *string
	apiAddr   *string
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("journeyd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("journeyd exited successfully")
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	imgWriter, err := images.NewWriter(images.WithBaseDir(*flags.imagesDir))
	if err != nil {
		return err
	}

	var (
		syncer    journey.Syncer
		syncStats api.SyncStats
		disp      *webhook.Dispatcher
	)
	if *flags.syncURL != "" {
		client, err := webhook.NewClient(webhook.WithBaseURL(*flags.syncURL))
		if err != nil {
			return err
		}
		disp = webhook.NewDispatcher(client,
			webhook.WithQueueSize(util.ParseIntEnv("JOURNEY_SYNC_QUEUE_SIZE", webhook.DefaultQueueSize)),
			webhook.WithWorkers(util.ParseIntEnv("JOURNEY_SYNC_WORKERS", webhook.DefaultWorkerCount)),
			webhook.WithMaxAttempts(util.ParseIntEnv("JOURNEY_SYNC_MAX_ATTEMPTS", webhook.DefaultMaxAttempts)),
		)
		syncer = disp
		syncStats = disp
		defer disp.Stop()
	} else {
		slog.Info("No sync URL configured, external updates disabled")
	}

	var gen api.DocentGenerator
	if *flags.openaiKey != "" {
		genaiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		gen = genaiClient
	} else {
		slog.Info("No OpenAI API key configured, review generation disabled")
	}

	mgr := journey.NewManager(st, imgWriter, syncer)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	srv := api.NewServer(mgr, gen, syncStats, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	return <-errCh
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var handler slog.Handler
	if util.ParseBoolEnv("LOG_JSON", false) {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("JOURNEY_STATE_DIR"),
		ImagesDir:   os.Getenv("JOURNEY_IMAGES_DIR"),
		SyncURL:     os.Getenv("JOURNEY_SYNC_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ImagesDir == "" {
		config.ImagesDir = filepath.Join(config.StateDir, DefaultImagesSubdir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"JOURNEY_STATE_DIR", config.StateDir,
		"JOURNEY_IMAGES_DIR", config.ImagesDir,
		"JOURNEY_SYNC_URL_SET", config.SyncURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for journeyd data (overrides $JOURNEY_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN: Postgres URL or SQLite file path (overrides $DATABASE_URL)"),
		imagesDir: flag.String("images-dir", config.ImagesDir, "base directory for reflection images (overrides $JOURNEY_IMAGES_DIR)"),
		syncURL:   flag.String("sync-url", config.SyncURL, "base URL of the external gallery system (overrides $JOURNEY_SYNC_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	// Keep the SQLite default next to the state directory when only the
	// state directory was overridden.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	if *flags.imagesDir == config.ImagesDir && config.ImagesDir == filepath.Join(config.StateDir, DefaultImagesSubdir) && *flags.stateDir != config.StateDir {
		*flags.imagesDir = filepath.Join(*flags.stateDir, DefaultImagesSubdir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"imagesDir", *flags.imagesDir,
		"syncURL_set", *flags.syncURL != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr)

	return flags
}

// buildStore opens the record store matching the DSN type
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	if err := os.MkdirAll(filepath.Dir(*flags.dbDSN), 0755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}
