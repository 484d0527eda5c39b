package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/marketloop/videofeed"
	"github.com/marketloop/videofeed/internal/bridge"
	"github.com/marketloop/videofeed/internal/config"
	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/metrics"
	"github.com/marketloop/videofeed/internal/middleware"
	"github.com/marketloop/videofeed/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables; .env is optional
	_ = godotenv.Load()

	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Log.Info("=== videofeed server starting ===")

	metrics.Initialize()

	// Optional distributed tracing
	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "videofeed",
		Environment:  envOr("ENVIRONMENT", "development"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		Enabled:      os.Getenv("OTLP_ENDPOINT") != "",
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	settings := config.FromEnv()
	logger.Log.Info("Feed settings loaded",
		zap.Bool("enabled", settings.Enabled),
		zap.Float64("visibility_threshold", settings.VisibilityThreshold),
		zap.Int("max_concurrent", settings.MaxConcurrentVideos),
		zap.Duration("scroll_pause_delay", settings.ScrollPauseDelay))

	bridgeHandler := bridge.NewHandler(videofeed.WithSettings(settings))

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(otelgin.Middleware("videofeed"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "videofeed",
			"sessions":  bridgeHandler.SessionCount(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		feed := api.Group("/feed")
		{
			feed.GET("/ws", bridgeHandler.HandleWebSocket)
			feed.GET("/stats", bridgeHandler.HandleStats)
			feed.POST("/settings", bridgeHandler.HandleSettings)
		}
	}

	port := envOr("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("videofeed server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bridgeHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("Bridge shutdown warning", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if tp != nil {
		_ = tp.Shutdown(ctx)
	}

	logger.Log.Info("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
