package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/fuchsia74/grok-api/common"
	"github.com/fuchsia74/grok-api/common/client"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/graceful"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/dto"
	"github.com/fuchsia74/grok-api/middleware"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/monitor"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/router"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	common.Init()
	logger.SetupLogger()

	// Setup enhanced logger with alertPusher integration
	logger.SetupEnhancedLogger(ctx)

	logger.Logger.Info("Grok API started", zap.String("version", common.Version))

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize SQL Database
	model.InitDB()
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Fatal("failed to close database", zap.Error(err))
		}
	}()

	// Initialize Redis
	if err := common.InitRedisClient(); err != nil {
		logger.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}

	// Initialize options
	model.InitOptionMap()
	go model.SyncOptions(config.SyncFrequency)

	client.Init()

	if err := dto.RegisterCustomValidators(); err != nil {
		logger.Logger.Fatal("failed to register request validators", zap.Error(err))
	}

	// Load the credential pool and start its usage persister.
	if err := pool.InitDefault(ctx); err != nil {
		logger.Logger.Fatal("failed to load token pool", zap.Error(err))
	}

	if config.EnablePrometheusMetrics {
		monitor.RegisterPoolStats(func() map[string]monitor.PoolCounts {
			stats := make(map[string]monitor.PoolCounts, 2)
			for _, name := range []string{model.PoolBasic, model.PoolSuper} {
				s := pool.Default().PoolStats(name)
				stats[name] = monitor.PoolCounts{
					Active:     s.Active,
					Cooling:    s.Cooling,
					Expired:    s.Expired,
					Disabled:   s.Disabled,
					TotalQuota: s.TotalQuota,
				}
			}
			return stats
		})
		logger.Logger.Info("Prometheus monitoring initialized")
	}

	// Background janitors; they spawn their own goroutines.
	if config.IsMasterNode {
		model.StartTraceRetentionCleaner(ctx, config.TraceRetentionDays)
	}
	logger.StartLogRetentionCleaner(ctx, config.LogRetentionDays, logger.LogDir)

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	// Initialize HTTP server
	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)
	// This will cause SSE not to work!!!
	//server.Use(gzip.Gzip(gzip.DefaultCompression))
	server.Use(middleware.RequestId())
	server.Use(middleware.TracingMiddleware())
	server.Use(func(c *gin.Context) {
		done := graceful.BeginRequest()
		defer done()
		c.Next()
	})

	// Initialize session store
	sessionSecret, err := base64.StdEncoding.DecodeString(config.SessionSecret)
	var sessionStore cookie.Store
	if err != nil {
		logger.Logger.Info("session secret is not base64 encoded, using raw value instead")
		sessionStore = cookie.NewStore([]byte(config.SessionSecret))
	} else {
		sessionStore = cookie.NewStore(sessionSecret, sessionSecret)
	}
	server.Use(sessions.Sessions("session", sessionStore))

	router.SetRouter(server)

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(*common.Port)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server,
	}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutdown signal received, draining")
	graceful.SetDraining()
	// Cancelling the app context ends the pool persister loop; its final
	// flush runs inside the tracked goroutine, so Drain waits for it.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	// Stop accepting requests, then wait for batch runners and the pool
	// persister to finish their current work.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("http server shutdown", zap.Error(err))
	}
	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Error("background workers did not drain", zap.Error(err))
	}
	logger.Logger.Info("shutdown complete")
}
