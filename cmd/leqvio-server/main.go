package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/config"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/patients"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/ingest"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/blobstore"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/chain"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/db"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/dictation"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/docai"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/metrics"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "leqvio-server",
		Short: "LEQVIO patient enrollment service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the enrollment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger builds the process logger: JSON to stdout, console format in
// development, and a size-rotated file alongside stdout when LOG_FILE is
// set.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if cfg.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// docaiConfig maps the selected provider to its credentials and model.
func docaiConfig(cfg *config.Config) docai.Config {
	c := docai.Config{Provider: cfg.DocAIProvider}
	switch strings.ToLower(cfg.DocAIProvider) {
	case "openai":
		c.APIKey = cfg.OpenAIAPIKey
		c.Model = cfg.OpenAIModel
	case "anthropic", "claude":
		c.APIKey = cfg.AnthropicKey
		c.Model = cfg.AnthropicModel
	}
	return c
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Blob storage
	var store blobstore.BlobStore
	if cfg.UploadDir != "" {
		store, err = blobstore.NewFileStore(cfg.UploadDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to open upload directory")
		}
	} else {
		logger.Warn().Msg("UPLOAD_DIR not set; documents are stored in memory")
		store = blobstore.NewInMemoryStore()
	}

	// Document field extraction (optional)
	extractor, err := docai.NewExtractor(docaiConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure extraction provider")
	}
	if extractor != nil {
		if cfg.DocAICacheTTL > 0 {
			cached := docai.NewCached(extractor, cfg.DocAICacheTTL, cfg.DocAICacheTTL)
			metrics.RegisterDocAICache(cached.Hits, cached.Lookups)
			extractor = cached
		}
		logger.Info().Str("provider", extractor.Name()).Msg("document extraction enabled")
	}

	// Automation chain (optional)
	var trigger chain.Triggerer = chain.Noop{}
	if cfg.ChainEnabled {
		trigger = chain.New(cfg.ChainURL, cfg.ChainSecret, cfg.ChainName,
			chain.WithHTTPClient(&http.Client{Timeout: cfg.ChainTimeout}))
		logger.Info().Str("chain", cfg.ChainName).Msg("chain trigger enabled")
	}

	// Domain services
	patientRepo := patients.NewPatientRepoPG(pool)
	patientSvc := patients.NewService(patientRepo)
	docSvc := documents.NewService(documents.NewDocumentRepoPG(pool), store)
	intakeSvc := intake.NewService(intake.NewRecordRepoPG(pool), patientSvc, docSvc,
		patients.NewNameLookupResolver(patientRepo), extractor, trigger, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	patients.NewHandler(patientSvc).RegisterRoutes(apiV1)
	documents.NewHandler(docSvc).RegisterRoutes(apiV1)
	intake.NewHandler(intakeSvc).RegisterRoutes(apiV1)

	// Live dictation sessions
	hub := dictation.NewHub()
	dictation.NewHandler(hub, intakeSvc, logger).RegisterRoutes(apiV1)

	// Inbox watcher (optional)
	watchCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	if cfg.InboxDir != "" {
		watcher := ingest.NewWatcher(cfg.InboxDir, intakeSvc, logger)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				logger.Error().Err(err).Msg("inbox watcher failed")
			}
		}()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWatcher()
	hub.CloseAll()
	sdCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sdCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
