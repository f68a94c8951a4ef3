// Package main is the entry point for the Vantage portfolio intelligence
// service. It wires the secret store, broker session, quote providers,
// the hybrid price streamer and the analysis modules behind one HTTP
// server, then runs until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vantage/internal/broker/saxo"
	"vantage/internal/clientdata"
	"vantage/internal/config"
	"vantage/internal/database"
	"vantage/internal/modules/alerts"
	"vantage/internal/modules/backtest"
	"vantage/internal/modules/indicators"
	"vantage/internal/modules/journal"
	"vantage/internal/modules/montecarlo"
	"vantage/internal/modules/portfolio"
	"vantage/internal/notify/telegram"
	"vantage/internal/quotes"
	"vantage/internal/quotes/yahoo"
	"vantage/internal/regime"
	"vantage/internal/reliability"
	"vantage/internal/scheduler"
	"vantage/internal/secrets"
	"vantage/internal/server"
	"vantage/internal/stream"
	"vantage/internal/tokens"
	"vantage/pkg/logger"
)

// storedCredentials is the payload shape kept under scope "config" in the
// encrypted store. Operators who prefer not to leave broker credentials
// in the environment save them here once; FORCE_ENV_CONFIG bypasses it.
type storedCredentials struct {
	SaxoAppKey       string `json:"saxo_app_key"`
	SaxoAppSecret    string `json:"saxo_app_secret"`
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
}

const credentialScope = "config"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Str("environment", cfg.Saxo.Environment).Msg("Starting Vantage")

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	}

	key, err := secrets.LoadKey(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("VANTAGE_ENCRYPTION_KEY is required")
	}
	tokenStore, err := secrets.NewStore(filepath.Join(cfg.DataDir, "tokens.json"), key, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open token store")
	}
	configStore, err := secrets.NewStore(filepath.Join(cfg.DataDir, "config.encrypted.json"), key, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open encrypted config store")
	}

	if !cfg.ForceEnvConfig {
		applyStoredCredentials(cfg, configStore, log)
	}

	journalDB := mustOpenDB(log, database.Config{
		Path:    filepath.Join(cfg.DataDir, "journal.db"),
		Profile: database.ProfileLedger,
		Name:    "journal",
	})
	defer journalDB.Close()

	cacheDB := mustOpenDB(log, database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	defer cacheDB.Close()

	databases := []*database.DB{journalDB, cacheDB}

	notifier := telegram.NewNotifier(cfg.Telegram, log)
	if !notifier.Enabled() {
		log.Warn().Msg("Telegram credentials not configured, notifications disabled")
	}

	env := saxo.Environment(cfg.Saxo.Environment)
	authClient := saxo.NewAuthClient(saxo.AuthConfig{
		AppKey:      cfg.Saxo.AppKey,
		AppSecret:   cfg.Saxo.AppSecret,
		RedirectURI: cfg.Saxo.RedirectURI,
		Environment: env,
	}, log)

	tokenManager := tokens.NewManager(tokens.ManagerConfig{
		Store:     tokenStore,
		Refresher: authClient,
		Broker:    saxo.BrokerName,
		OnFailure: func(broker string, err error) {
			notifier.SendTokenFailure(context.Background(), broker, err)
		},
		Log: log,
	})

	saxoClient := saxo.NewClient(saxo.ClientConfig{Environment: env}, tokenManager, log)

	// Quote path: Yahoo upstream behind the msgpack TTL cache. Every
	// module reads through the same provider so cache hits are shared.
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	provider := quotes.NewCachingProvider(yahoo.NewClient(log), cacheRepo, log)

	engine := indicators.NewEngine(log)
	enricher := portfolio.NewEnricher(provider, engine, nil, log)
	portfolioSvc := portfolio.NewService(saxoClient, enricher, log)

	mcSvc := montecarlo.NewService(montecarlo.NewEngine(log), provider, log)
	backtestSvc := backtest.NewService(backtest.NewEngine(log), backtest.NewRepository(journalDB.Conn()), provider, settings.Regime, log)
	journalSvc := journal.NewService(journal.NewRepository(journalDB.Conn()), log)
	regimeDetector := regime.NewDetector(provider, settings.Regime, log)

	alertConfigPath := filepath.Join(cfg.DataDir, "alert_config.json")
	alertConfig, err := alerts.NewConfigStore(alertConfigPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open alert config store")
	}
	seedAlertConfig(alertConfig, alertConfigPath, settings.Alerts, log)

	alertHistory, err := alerts.NewHistoryStore(filepath.Join(cfg.DataDir, "signal_history.json"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open alert history store")
	}

	var alertNotifier alerts.Notifier
	if notifier.Enabled() {
		alertNotifier = notifier
	}
	watcher := alerts.NewWatcher(alertConfig, alertHistory, alerts.NewScanner(provider, log), alertNotifier, log)

	registry := stream.NewRegistry()
	pollingSource := stream.NewPollingSource(provider, log)
	if err := registry.Register(pollingSource); err != nil {
		log.Fatal().Err(err).Msg("Failed to register polling source")
	}
	if err := registry.SetDefault(pollingSource.Name()); err != nil {
		log.Fatal().Err(err).Msg("Failed to set default price source")
	}
	if err := registry.Register(stream.NewSaxoStreamingSource(saxoClient, tokenManager, saxo.StreamingURL(env), log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register broker streaming source")
	}
	if cfg.ExternalFeedURL != "" {
		if err := registry.Register(stream.NewExternalFeedSource("external", cfg.ExternalFeedURL, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register external feed source")
		}
	}

	hub := stream.NewHub(log)
	streamer := stream.NewStreamer(registry, hub, settings.Stream, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := streamer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start streamer")
	}

	// Token refresh and the alert watcher run their own self-arming
	// loops: both periods change at runtime, which cron entries cannot
	// follow.
	go tokenManager.Run(ctx)
	go watcher.Run(ctx)

	sched := scheduler.New(log)
	mustAddJob(log, sched, "0 0 2 * * *", scheduler.NewMaintenanceJob(databases, log))
	mustAddJob(log, sched, "@hourly", scheduler.NewWALCheckpointJob(databases, log))
	mustAddJob(log, sched, "0 0 4 * * *", clientdata.NewCleanupJob(cacheRepo, log))

	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup storage client")
		}
		backupSvc := reliability.NewBackupService(s3Client, databases, cfg.DataDir, cfg.Backup.RetentionDays, log)
		mustAddJob(log, sched, "0 0 3 * * *", reliability.NewBackupJob(backupSvc, log))
	} else {
		log.Warn().Msg("Backup storage not configured, off-site backups disabled")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:          log,
		Cfg:          cfg,
		JournalDB:    journalDB,
		CacheDB:      cacheDB,
		TokenManager: tokenManager,
		Auth:         authClient,
		Provider:     provider,
		Indicators:   engine,
		Portfolio:    portfolioSvc,
		Journal:      journalSvc,
		Backtest:     backtestSvc,
		MonteCarlo:   mcSvc,
		AlertConfig:  alertConfig,
		AlertHistory: alertHistory,
		Regime:       regimeDetector,
		Streamer:     streamer,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Vantage started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := streamer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Streamer did not stop cleanly")
	}
	sched.Stop()

	log.Info().Msg("Vantage stopped")
}

// mustOpenDB opens and migrates one database or exits
func mustOpenDB(log zerolog.Logger, cfg database.Config) *database.DB {
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("database", cfg.Name).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Str("database", cfg.Name).Msg("Failed to migrate database")
	}
	return db
}

func mustAddJob(log zerolog.Logger, sched *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}

// applyStoredCredentials overlays broker and notifier credentials from the
// encrypted config store onto cfg. Stored values win over the environment;
// absent fields leave the environment value in place.
func applyStoredCredentials(cfg *config.Config, store *secrets.Store, log zerolog.Logger) {
	var creds storedCredentials
	err := store.Get(tokens.DefaultUser, credentialScope, &creds)
	if errors.Is(err, secrets.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read encrypted config, using environment credentials")
		return
	}

	if creds.SaxoAppKey != "" {
		cfg.Saxo.AppKey = creds.SaxoAppKey
	}
	if creds.SaxoAppSecret != "" {
		cfg.Saxo.AppSecret = creds.SaxoAppSecret
	}
	if creds.TelegramBotToken != "" {
		cfg.Telegram.BotToken = creds.TelegramBotToken
	}
	if creds.TelegramChatID != "" {
		cfg.Telegram.ChatID = creds.TelegramChatID
	}
	log.Info().Msg("Applied credentials from encrypted config store")
}

// seedAlertConfig writes the file-backed alert configuration from the
// yaml settings on first run only. After that the file is the source of
// truth and is edited through the API.
func seedAlertConfig(store *alerts.ConfigStore, path string, seed config.AlertSettings, log zerolog.Logger) {
	if _, err := os.Stat(path); err == nil || !errors.Is(err, os.ErrNotExist) {
		return
	}

	cfg := alerts.DefaultConfig()
	cfg.Enabled = seed.Enabled
	if seed.IntervalSeconds > 0 {
		cfg.IntervalSeconds = seed.IntervalSeconds
	}
	if seed.CooldownMinutes > 0 {
		cfg.CooldownMinutes = seed.CooldownMinutes
	}
	if len(seed.Tickers) > 0 {
		cfg.Tickers = seed.Tickers
	}

	if err := store.Save(cfg); err != nil {
		log.Warn().Err(err).Msg("Failed to seed alert config from settings")
		return
	}
	log.Info().Int("tickers", len(cfg.Tickers)).Msg("Seeded alert config from settings")
}
