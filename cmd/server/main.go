package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ai"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/auth"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/config"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/database"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/gmail"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingest"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/realtime"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	cfg.LogConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database (GORM for the domain layer, pgx pool for the job queue)
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	// Blob storage
	fileStorage, err := storage.NewLocalStorage(cfg.AttachmentStoragePath)
	if err != nil {
		return err
	}

	// Event fan-out
	catalog, err := events.NewCatalog()
	if err != nil {
		return err
	}
	dispatcher, err := events.NewDispatcher(pool, catalog, logger)
	if err != nil {
		return err
	}

	// Realtime hub
	hub := realtime.NewHub(logger)
	go hub.Run()

	// Repositories
	mailboxRepo := repository.NewMailboxRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// Classifier (optional; ingestion fails open without it)
	var classifier *ai.Classifier
	if cfg.GoogleAIAPIKey != "" {
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAIAPIKey),
			googleai.WithDefaultModel(cfg.ClassifierModel))
		if err != nil {
			return fmt.Errorf("failed to create language model client: %w", err)
		}
		classifier = ai.NewClassifier(llm, cfg.ClassifierTimeout, logger)
	} else {
		logger.Warn("GOOGLE_AI_API_KEY not set, message classification disabled")
	}

	// Ingestion
	resolver := conversation.NewResolver(conversationRepo, messageRepo, logger)
	service := conversation.NewService(conversationRepo, eventRepo, mailboxRepo, dispatcher, hub, logger)
	gmailClient := gmail.NewClient(cfg.GmailAccessToken, logger)
	pipeline := ingest.NewPipeline(db, mailboxRepo, messageRepo, conversationRepo, staffRepo,
		resolver, service, classifier, gmailClient, fileStorage, dispatcher, logger)

	// Webhook authentication
	var verifier auth.Verifier
	if cfg.PubSubExpectedEmail != "" {
		verifier = auth.NewOIDCVerifier(cfg.PubSubExpectedEmail, cfg.PubSubAudience)
	} else {
		logger.Warn("PUBSUB_EXPECTED_EMAIL not set, webhook authentication disabled")
	}

	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Pipeline:       pipeline,
		Service:        service,
		Dispatcher:     dispatcher,
		Hub:            hub,
		Verifier:       verifier,
		Logger:         logger,
		APIKey:         cfg.APIKey,
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
		RateLimit:      cfg.RateLimitRequests,
		RateBurst:      cfg.RateLimitBurst,
		Production:     cfg.AppEnv == "production",
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("starting API server", slog.String("addr", addr))
		if err := router.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
