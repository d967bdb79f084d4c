package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blagoySimandov/autoflow/internal/api"
	"github.com/blagoySimandov/autoflow/internal/auth"
	"github.com/blagoySimandov/autoflow/internal/config"
	"github.com/blagoySimandov/autoflow/internal/dataset"
	"github.com/blagoySimandov/autoflow/internal/dispatch"
	"github.com/blagoySimandov/autoflow/internal/ledger"
	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/pipeline"
	"github.com/blagoySimandov/autoflow/internal/services"
	"github.com/blagoySimandov/autoflow/internal/state"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel)
	ctx := context.Background()

	datasets, closeDatasets := newDatasetStore(ctx, cfg)
	defer closeDatasets()

	// The service keeps running on the local log when Postgres is unavailable.
	var store state.Store
	if cfg.DatabaseURL != "" {
		pg, err := state.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Log.Warn("durable store unavailable, runs will be kept in the local log", "error", err)
		} else {
			store = pg
			defer pg.Close()
		}
	}

	usage := services.NewUsageTracker()
	generator, err := services.NewContentGenerator(newAIClient(ctx, cfg, usage),
		services.WithTimeout(cfg.AITimeout),
		services.WithMaxRetries(cfg.AIMaxRetries),
	)
	if err != nil {
		fatal("failed to create content generator", err)
	}

	dispatcher := dispatch.NewDispatcher(transportOptions(cfg)...)
	runLedger := ledger.New(store, ledger.NewLocalLog(cfg.LocalLogCapacity))

	orchestrator := pipeline.NewOrchestrator(datasets, generator, dispatcher, runLedger, &pipeline.OrchestratorConfig{
		WorkersPerStage:          cfg.WorkersPerStage,
		ChannelBufferSize:        cfg.ChannelBufferSize,
		AbortOnMissingCredential: cfg.AbortOnMissingAIKey,
	}, pipeline.WithUsageTracker(usage))

	verifier, closeVerifier := newVerifier(cfg)
	defer closeVerifier()
	authMiddleware := auth.NewMiddleware(verifier)

	router := api.SetupRoutes(api.Handlers{
		Workflow: api.NewWorkflowHandler(datasets, orchestrator),
		History:  api.NewHistoryHandler(store, runLedger.Local()),
		Health:   api.NewHealthHandler(store, generator, dispatcher, cfg.AIProvider, authMiddleware.Enabled()),
	}, authMiddleware, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Log.Error("server shutdown error", "error", err)
		}
	}()

	logger.Log.Info("server starting", "addr", cfg.ServerAddr, "ai_provider", cfg.AIProvider, "auth_enabled", authMiddleware.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("server failed to start", err)
	}

	logger.Log.Info("server stopped")
}

func newDatasetStore(ctx context.Context, cfg *config.Config) (dataset.Store, func()) {
	if cfg.GCSBucket != "" {
		gcs, err := dataset.NewGCSSource(ctx, cfg.GCSBucket)
		if err != nil {
			fatal("failed to create GCS dataset source", err)
		}
		return gcs, func() { gcs.Close() }
	}

	local, err := dataset.NewLocalSource(cfg.UploadDir)
	if err != nil {
		fatal("failed to create upload directory", err)
	}
	return local, func() {}
}

// newAIClient returns a nil interface when no credential is configured so
// the generator reports ErrNoCredential instead of calling out.
func newAIClient(ctx context.Context, cfg *config.Config, usage services.IUsageTracker) services.IAIClient {
	var (
		client services.IAIClient
		err    error
	)
	key := cfg.AIAPIKey()
	switch cfg.AIProvider {
	case "groq":
		var groq *services.GroqAIClient
		groq, err = services.NewGroqAIClient(key,
			services.WithGroqModel(cfg.GroqModel),
			services.WithGroqUsageTracker(usage),
		)
		if err == nil {
			client = groq
		}
	default:
		var gemini *services.GeminiAIClient
		gemini, err = services.NewGeminiAIClient(ctx, key,
			services.WithModel(cfg.GeminiModel),
			services.WithUsageTracker(usage),
		)
		if err == nil {
			client = gemini
		}
	}

	switch {
	case errors.Is(err, services.ErrNoCredential):
		logger.Log.Warn("no AI credential configured, content generation will fail", "provider", cfg.AIProvider)
	case err != nil:
		fatal("failed to create AI client", err)
	}
	return client
}

func transportOptions(cfg *config.Config) []dispatch.Option {
	var opts []dispatch.Option

	if cfg.SMTPConfigured() {
		smtp, err := dispatch.NewSMTPTransport(dispatch.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			fatal("failed to create SMTP transport", err)
		}
		opts = append(opts, dispatch.WithTransport(models.ChannelEmail, smtp))
	} else {
		logger.Log.Warn("SMTP not configured, email delivery is simulated")
	}

	if cfg.WhatsAppWebhookURL != "" {
		opts = append(opts, dispatch.WithTransport(models.ChannelWhatsApp,
			dispatch.NewWebhookTransport(cfg.WhatsAppWebhookURL, cfg.WhatsAppWebhookSecret, string(models.ChannelWhatsApp))))
	} else {
		logger.Log.Warn("WhatsApp webhook not configured, WhatsApp delivery is simulated")
	}

	return opts
}

func newVerifier(cfg *config.Config) (auth.Verifier, func()) {
	switch {
	case cfg.AuthJWKSURL != "":
		v, err := auth.NewJWKSVerifier(cfg.AuthJWKSURL)
		if err != nil {
			fatal("failed to create JWKS verifier", err)
		}
		return v, v.Close
	case cfg.AuthHMACSecret != "":
		v, err := auth.NewHMACVerifier(cfg.AuthHMACSecret)
		if err != nil {
			fatal("failed to create HMAC verifier", err)
		}
		return v, v.Close
	default:
		logger.Log.Warn("no auth verifier configured, API is unauthenticated")
		return nil, func() {}
	}
}

func fatal(msg string, err error) {
	logger.Log.Error(msg, "error", err)
	os.Exit(1)
}
