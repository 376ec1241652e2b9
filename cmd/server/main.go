package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/ai"
	"github.com/kyiku/tangram-back/internal/config"
	"github.com/kyiku/tangram-back/internal/handler"
	"github.com/kyiku/tangram-back/internal/judge"
	"github.com/kyiku/tangram-back/internal/level"
	appmiddleware "github.com/kyiku/tangram-back/internal/middleware"
	"github.com/kyiku/tangram-back/internal/record"
	"github.com/kyiku/tangram-back/internal/session"
	"github.com/kyiku/tangram-back/internal/storage"
	"github.com/kyiku/tangram-back/internal/worker"
)

func main() {
	logger := log.New("tangram")
	logger.SetLevel(log.INFO)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			e.Logger.Infof("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(appmiddleware.CORSMiddleware(cfg.AllowedOrigin))

	// AWS clients
	var s3Adapter *S3Adapter
	var bedrockAdapter *BedrockAdapter
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Warnf("failed to load AWS config: %v (S3 and Bedrock are disabled)", err)
	} else {
		if cfg.S3Bucket != "" {
			s3Adapter = &S3Adapter{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket}
		}
		bedrockAdapter = &BedrockAdapter{client: bedrockruntime.NewFromConfig(awsCfg)}
	}

	var s3Client *storage.S3Client
	if s3Adapter != nil {
		s3Client = storage.NewS3Client(s3Adapter, cfg.S3Bucket, cfg.CloudfrontDomain)
	}

	// Levels
	catalog := level.Load(logger, levelSources(cfg, s3Client)...)

	// Records
	var backend record.Backend
	if s3Client != nil {
		backend = s3Client
	}
	records := record.NewStore(backend, storage.RecordKey, logger)

	// Worker
	engine := worker.NewEngine()
	dispatcher := newDispatcher(cfg, engine, logger)
	client := worker.NewClient(engine, dispatcher, logger)
	defer client.Close()

	// Sessions
	sessionStore := session.NewSessionStoreWithExpiry(session.Config{
		Width:   cfg.CanvasWidth,
		Height:  cfg.CanvasHeight,
		Judge:   judge.New(cfg.CanvasWidth, cfg.CanvasHeight, cfg.WinTolerance),
		Snap:    cfg.SnapOptions(dispatcher == nil),
		Client:  client,
		Records: records,
		Logger:  logger,
	}, cfg.SessionTTL)

	// Handlers
	healthHandler := handler.NewHealthHandler(client)
	engineHandler := handler.NewEngineHandler(client)
	levelHandler := handler.NewLevelHandler(catalog)
	recordHandler := handler.NewRecordHandler(records, catalog)
	wsHandler := handler.NewWebSocketHandler(engine, cfg.AllowedOrigin, logger)
	sessionHandler := handler.NewSessionHandler(sessionStore, catalog, logger)
	if bedrockAdapter != nil {
		hints := ai.NewBedrockClient(bedrockAdapter, cfg.BedrockModelID)
		hints.EnableFallback(true)
		sessionHandler.SetHinter(hints)
	}
	if s3Client != nil {
		sessionHandler.SetUploader(s3Client)
	}

	limiter := appmiddleware.NewRateLimiter(30, time.Minute)
	defer limiter.Stop()
	limited := appmiddleware.RateLimitMiddleware(limiter)

	// Health check (root level for ALB)
	e.GET("/health", healthHandler.Check)

	// WebSocket worker endpoint
	e.GET("/ws", wsHandler.Connect)

	// API routes
	api := e.Group("/api")
	api.GET("/health", healthHandler.Check)

	api.POST("/check", engineHandler.Check)
	api.POST("/snap", engineHandler.Snap, limited)

	api.GET("/levels", levelHandler.List)
	api.GET("/levels/:id", levelHandler.Get)

	api.GET("/records", recordHandler.List)

	api.POST("/session", sessionHandler.Create)
	api.GET("/session", sessionHandler.State)
	api.POST("/session/pieces/:index/drag", sessionHandler.Drag)
	api.POST("/session/pieces/:index/move", sessionHandler.Move)
	api.POST("/session/pieces/:index/release", sessionHandler.Release)
	api.POST("/session/pieces/:index/rotate", sessionHandler.Rotate)
	api.POST("/session/check", sessionHandler.Check)
	api.POST("/session/snap", sessionHandler.Snap, limited)
	api.POST("/session/win", sessionHandler.Win)
	api.POST("/session/pause", sessionHandler.Pause)
	api.POST("/session/reset", sessionHandler.Reset)
	api.POST("/session/hint", sessionHandler.Hint, limited)
	api.POST("/session/overlay", sessionHandler.Overlay, limited)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, sessionStore, cfg.SessionTTL, logger)

	for _, r := range e.Routes() {
		logger.Infof("  %-6s %s", r.Method, r.Path)
	}
	logger.Infof("%d levels loaded (fallback: %v), worker mode %s", catalog.Len(), catalog.UsingFallback(), cfg.WorkerMode)

	go func() {
		logger.Infof("Starting server on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("failed to shut down: %v", err)
	}
	if err := records.Flush(); err != nil {
		logger.Errorf("failed to save records: %v", err)
	}
}

// levelSources lists where levels are read from, in order of preference.
func levelSources(cfg *config.Config, s3Client *storage.S3Client) []level.Source {
	var sources []level.Source
	if cfg.LevelsFile != "" {
		sources = append(sources, level.FileSource{Path: cfg.LevelsFile})
	}
	if s3Client != nil {
		sources = append(sources, level.S3Source{Client: s3Client, Key: cfg.LevelsKey})
	}
	if cfg.NormalizeLevels {
		for i, src := range sources {
			sources[i] = level.NormalizedSource{Source: src}
		}
	}
	return sources
}

// newDispatcher returns the background executor for the configured worker
// mode, or nil to compute every request synchronously.
func newDispatcher(cfg *config.Config, engine *worker.Engine, logger *log.Logger) worker.Dispatcher {
	switch cfg.WorkerMode {
	case config.WorkerRemote:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		remote, err := worker.DialRemote(ctx, cfg.WorkerURL)
		if err != nil {
			logger.Warnf("remote worker unavailable, computing synchronously: %v", err)
			return nil
		}
		return remote
	case config.WorkerSync:
		return nil
	default:
		return worker.NewWorker(engine, 64)
	}
}

func sweepSessions(ctx context.Context, store *session.SessionStore, ttl time.Duration, logger *log.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Infof("removed %d expired sessions", n)
			}
		}
	}
}
