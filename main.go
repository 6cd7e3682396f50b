package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/prizzzz/leaseIQ/config"
	"github.com/prizzzz/leaseIQ/handler"
	"github.com/prizzzz/leaseIQ/middleware"
	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/events"
	"github.com/prizzzz/leaseIQ/pkg/logger"
	"github.com/prizzzz/leaseIQ/pkg/metrics"
	"github.com/prizzzz/leaseIQ/scoring"
	"github.com/prizzzz/leaseIQ/service"
)

// Set by build flags.
var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "leaseiq",
		Short:   "LeaseIQ lease contract analysis API",
		Version: version,
		// serve is the default
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newScoreCmd())
	root.AddCommand(newEstimateCmd())
	root.AddCommand(newHashPasswordCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

// loadConfig reads path, falling back to defaults and environment overrides
// when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

// deps is everything the router needs.
type deps struct {
	cfg        *config.Config
	repo       service.ContractRepository
	pipeline   *service.Pipeline
	extractor  *service.Extractor
	negotiator *service.Negotiator
	vin        handler.VehicleDecoder
	market     scoring.MarketPricer
	metrics    *metrics.Metrics
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (service.ContractRepository, error) {
	switch cfg.Driver {
	case "memory":
		return service.NewMemoryStore(), nil
	case "sqlite":
		return service.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return service.NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newOCR(cfg *config.Config) (service.OCR, error) {
	switch cfg.OCR.Provider {
	case "tesseract":
		return service.NewTesseractOCR(&cfg.OCR.Tesseract), nil
	case "mineru":
		// MinerU fetches the PDF by URL, so uploads must go to object storage.
		if !cfg.Minio.Enabled() {
			return nil, errors.New("ocr provider mineru requires minio to be configured")
		}
		return service.NewMineruOCR(&cfg.OCR.Mineru), nil
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", cfg.OCR.Provider)
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded successfully", "store", cfg.Store.Driver, "ocr", cfg.OCR.Provider, "lock_strategy", cfg.Scoring.LockStrategy)

	ctx := context.Background()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	repo, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open contract store: %w", err)
	}
	defer repo.Close()

	ocr, err := newOCR(cfg)
	if err != nil {
		return err
	}

	strategy, ok := model.ParseScoringStrategy(cfg.Scoring.LockStrategy)
	if !ok {
		return fmt.Errorf("unknown lock strategy %q", cfg.Scoring.LockStrategy)
	}
	market := scoring.NewEstimator()

	extractionLLM := service.NewLLMClient("extraction", cfg.LLM.Extraction, cfg.LLMTimeout(), m)
	chatLLM := service.NewLLMClient("chat", cfg.LLM.Chat, cfg.LLMTimeout(), m)
	extractor := service.NewExtractor(extractionLLM)

	publisher := events.NewPublisher(events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
	defer publisher.Close()

	pipeline := service.NewPipeline(repo, ocr, extractor, scoring.NewScorer(strategy, market, cfg.Scoring.CreditTier)).
		WithPublisher(publisher).
		WithMetrics(m)

	if cfg.Minio.Enabled() {
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			return fmt.Errorf("failed to initialize MINIO service: %w", err)
		}
		if err := minioSvc.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure MINIO bucket: %w", err)
		}
		pipeline.WithObjectStore(minioSvc)
	}

	router := newRouter(deps{
		cfg:        cfg,
		repo:       repo,
		pipeline:   pipeline,
		extractor:  extractor,
		negotiator: service.NewNegotiator(chatLLM),
		vin:        service.NewVINDecoder(&cfg.VIN),
		market:     market,
		metrics:    m,
	})

	// Uploads wait for OCR and extraction, chats stream for as long as the model talks.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.LLMTimeout() + 5*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}

// pinger is implemented by stores backed by a database server.
type pinger interface {
	Ping(ctx context.Context) error
}

func newRouter(d deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	if d.metrics != nil {
		router.Use(middleware.Metrics(d.metrics))
	}
	router.Use(corsMiddleware())
	router.Use(cacheMiddleware())
	router.Use(middleware.RateLimit(d.cfg.Server.RateLimit, time.Minute, middleware.ByClientIP))
	router.MaxMultipartMemory = d.cfg.Server.MaxUploadMB << 20

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if p, ok := d.repo.(pinger); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				logger.Warn(c.Request.Context(), "store ping failed", "error", err)
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":    status,
			"version":   version,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	if d.metrics != nil {
		router.GET(d.cfg.Metrics.Path, gin.WrapH(d.metrics.Handler()))
	}

	authHandler := handler.NewAuthHandler(d.cfg)
	contractHandler := handler.NewContractHandler(d.pipeline, d.repo, d.extractor, d.negotiator, d.cfg.Server.MaxUploadMB)
	chatHandler := handler.NewChatHandler(d.repo, d.negotiator)
	marketHandler := handler.NewMarketHandler(d.vin, d.market, d.cfg.Scoring.CreditTier)

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&d.cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.GET("/contracts/:id/status", contractHandler.GetStatus)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
		protected.GET("/market-info/:vin", marketHandler.Info)
	}

	// Routes that call the LLM are also limited per tenant.
	llm := protected.Group("/")
	llm.Use(middleware.RateLimit(d.cfg.Server.TenantRateLimit, time.Minute, middleware.ByTenant))
	{
		llm.POST("/contracts/upload", contractHandler.Upload)
		llm.POST("/contracts/:id/analyze", contractHandler.Analyze)
		llm.POST("/contracts/:id/chat", contractHandler.Chat)
		llm.POST("/chat", chatHandler.Chat)
		llm.POST("/simulator/chat", chatHandler.Simulator)
	}

	return router
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// cacheMiddleware disables caching of API responses
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
