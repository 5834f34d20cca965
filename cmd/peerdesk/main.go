package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"peerdesk/internal/config"
	cronrunner "peerdesk/internal/cron"
	"peerdesk/internal/db"
	"peerdesk/internal/handler"
	"peerdesk/internal/logger"
	"peerdesk/internal/platform"
	gormrepository "peerdesk/internal/repository/gorm"
	"peerdesk/internal/service"
)

func main() {
	cfgPath := os.Getenv("PD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	platformCfg := platform.Config{
		PaxfulBaseURL:  cfg.Platform.PaxfulBaseURL,
		PaxfulTokenURL: cfg.Platform.PaxfulTokenURL,
		NoonesBaseURL:  cfg.Platform.NoonesBaseURL,
		NoonesTokenURL: cfg.Platform.NoonesTokenURL,
		Timeout:        cfg.Platform.Timeout,
	}

	escalationService := &service.EscalationService{Store: store, Logger: logger}
	ingestService := &service.IngestService{
		Store:          store,
		Logger:         logger,
		PlatformConfig: platformCfg,
		AutoEscalate:   cfg.Ingest.AutoEscalate,
		Escalations:    escalationService,
	}
	assignService := &service.AssignService{
		Store:   store,
		Logger:  logger,
		LockKey: cfg.Assign.LockKey,
	}
	opsService := &service.TradeOpsService{
		Store:          store,
		Logger:         logger,
		PlatformConfig: platformCfg,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{
		Ingest: ingestService,
		Assign: assignService,
		Ops:    opsService,
		Store:  store,
		Logger: logger,
	}
	tradeHandler.Register(engine)
	escalationHandler := &handler.EscalationHandler{
		Service: escalationService,
		Store:   store,
		Logger:  logger,
	}
	escalationHandler.Register(engine)
	directoryHandler := &handler.DirectoryHandler{Store: store}
	directoryHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if cfg.Ingest.Enabled {
			_, err = cronRunner.Add(cfg.Cron.Ingest, func(ctx context.Context) {
				ingestService.RunCycle(ctx)
			})
			if err != nil {
				logger.Warn("cron register ingest failed", zap.Error(err))
			}
		}
		if cfg.Assign.Enabled {
			_, err = cronRunner.Add(cfg.Cron.Assign, func(ctx context.Context) {
				if _, err := assignService.RunCycle(ctx); err != nil {
					logger.Warn("cron assignment run failed", zap.Error(err))
				}
			})
			if err != nil {
				logger.Warn("cron register assign failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// requestIDMiddleware tags every request with an X-Request-Id so log lines and
// client reports can be correlated. An incoming header wins over a fresh id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
