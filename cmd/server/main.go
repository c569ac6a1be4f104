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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soundvault/backend/internal/abuse"
	"github.com/soundvault/backend/internal/cache"
	"github.com/soundvault/backend/internal/capability"
	"github.com/soundvault/backend/internal/catalog"
	"github.com/soundvault/backend/internal/cipher"
	"github.com/soundvault/backend/internal/config"
	"github.com/soundvault/backend/internal/database"
	"github.com/soundvault/backend/internal/events"
	"github.com/soundvault/backend/internal/logger"
	"github.com/soundvault/backend/internal/middleware"
	"github.com/soundvault/backend/internal/ratelimit"
	"github.com/soundvault/backend/internal/storage"
	"github.com/soundvault/backend/internal/streaming"
	"github.com/soundvault/backend/internal/telemetry"
	"github.com/soundvault/backend/internal/token"
	"github.com/soundvault/backend/internal/watermark"
)

const serviceName = "soundvault-backend"

func main() {
	// .env is optional; system environment wins either way
	_ = godotenv.Load()

	// Logger comes up first so config loading can warn about fallbacks
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE")); err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.FatalWithFields("Failed to load configuration", err)
	}

	logger.Log.Info("SoundVault backend starting",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
	)

	// Database holds API keys and the track catalog
	db, err := database.Connect(cfg.DatabaseURL, cfg.SQLitePath, cfg.Environment)
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}

	registry := capability.NewRegistry(db)
	if err := registry.Migrate(); err != nil {
		logger.FatalWithFields("Failed to migrate api_keys", err)
	}
	cat := catalog.NewGormCatalog(db)
	if err := cat.Migrate(); err != nil {
		logger.FatalWithFields("Failed to migrate tracks", err)
	}

	// Redis backs the rate limiter and event sink when selected
	var redisClient *cache.RedisClient
	if cfg.RateBackend == "redis" || cfg.EventSink == "redis" {
		redisClient, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.FatalWithFields("Failed to connect to Redis", err)
		}
		defer redisClient.Close()
	}

	var limiter ratelimit.Limiter
	if cfg.RateBackend == "redis" {
		limiter = ratelimit.NewRedisLimiter(cfg.RateTable, redisClient)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateTable)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	var sink events.Sink
	if cfg.EventSink == "redis" {
		sink = events.NewRedisSink(redisClient, "", 0)
	} else {
		sink = events.NewLogSink()
	}
	emitter := events.NewEmitter(sink, cfg.EventSinkBuffer)
	defer emitter.Close()

	var chunks storage.ChunkStore
	if cfg.ChunkBackend == "s3" {
		s3Store, err := storage.NewS3ChunkStore(cfg.S3Region, cfg.S3Bucket)
		if err != nil {
			logger.FatalWithFields("Failed to initialize S3 chunk store", err)
		}
		if err := s3Store.CheckBucketAccess(context.Background()); err != nil {
			logger.WarnWithFields("S3 bucket access check failed; chunk serving may fail", err)
		}
		chunks = s3Store
	} else {
		chunks = storage.NewMemoryChunkStore()
		logger.Warn("Using in-memory chunk store; chunks do not survive a restart")
	}

	payloads, err := cipher.NewPayloadCipher(cfg.RootSecret)
	if err != nil {
		logger.FatalWithFields("Failed to initialize payload cipher", err)
	}

	edge := streaming.NewEdge(
		token.NewCodec(cfg.SigningSecret, cfg.DefaultTokenTTL),
		payloads,
		watermark.NewMarker(),
		limiter,
		abuse.NewDetector(cfg.AbuseThresholds),
		cat,
		chunks,
		emitter,
		streaming.Config{
			AuditAll:   cfg.AuditAll,
			DefaultTTL: cfg.DefaultTokenTTL,
		},
	)

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.FatalWithFields("Failed to initialize tracer", err)
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.WarnWithFields("Tracer shutdown failed", err)
			}
		}()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tp != nil {
		r.Use(middleware.TracingMiddleware(serviceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	stream := api.Group("/stream")
	stream.Use(middleware.APIKeyAuth(registry))
	edge.RegisterRoutes(stream)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.FatalWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("Server exited")
}
