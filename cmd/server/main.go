package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fileconvert/cache"
	"fileconvert/config"
	"fileconvert/converter"
	"fileconvert/database"
	"fileconvert/eviction"
	"fileconvert/handlers"
	"fileconvert/kafka"
	"fileconvert/lifecycle"
	"fileconvert/memory"
	"fileconvert/middleware"
	"fileconvert/objectstore"
	"fileconvert/repository"
	"fileconvert/service"
	"fileconvert/store"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("fileconvert starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.Int64("memory_ceiling_bytes", cfg.MemoryCeilingBytes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := memory.NewMonitor(cfg.MemoryCeilingBytes, memory.Thresholds{
		Warning:   cfg.WarningFraction,
		Critical:  cfg.CriticalFraction,
		Emergency: cfg.EmergencyFraction,
	}, cfg.SampleInterval)

	st := store.New(cfg.MemoryCeilingBytes)
	st.SetUsageFunc(monitor.Usage)

	// Optional sidecars: the service runs memory-only without them,
	// which is the expected mode on the ephemeral host.
	var mirror *cache.StatusMirror
	if cfg.RedisAddr != "" {
		c, err := database.ConnectCache(cfg.RedisAddr)
		if err != nil {
			logger.Warn("Redis not available, running without status mirror", zap.Error(err))
		} else {
			defer c.Close()
			mirror = cache.NewStatusMirror(c)
			logger.Info("Status mirror enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var archive repository.Archive
	if cfg.DatabaseURL != "" {
		db, err := database.ConnectDB(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("Postgres not available, running without operation archive", zap.Error(err))
		} else {
			defer db.Close()
			archive = repository.NewPostgresArchive(db)
			logger.Info("Operation archive enabled")
		}
	}

	var events kafka.Producer
	if cfg.KafkaBrokers != "" {
		p, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		if err != nil {
			logger.Warn("Kafka not available, running without event publishing", zap.Error(err))
		} else {
			defer p.Close()
			events = p
			logger.Info("Operation events enabled", zap.String("topic", cfg.KafkaTopic))
		}
	}

	var objects service.ObjectStore
	if cfg.ObjectStoreBucket != "" {
		gcs, err := objectstore.ConnectGCS(ctx, cfg.ObjectStoreBucket)
		if err != nil {
			logger.Warn("Object storage not available, running without durable persistence", zap.Error(err))
		} else {
			defer gcs.Close()
			objects = gcs
			logger.Info("Durable persistence enabled", zap.String("bucket", cfg.ObjectStoreBucket))
		}
	}

	var mirrorHook lifecycle.StatusMirror
	var mirrorReader service.StatusReader
	if mirror != nil {
		mirrorHook = mirror
		mirrorReader = mirror
	}
	var eventsHook lifecycle.EventPublisher
	if events != nil {
		eventsHook = events
	}

	manager := lifecycle.NewManager(st, mirrorHook, archive, eventsHook, logger)

	scheduler := eviction.NewScheduler(st, monitor, manager, eviction.Policy{
		LongTTL:       cfg.LongTTL,
		ShortTTL:      cfg.ShortTTL,
		StallTimeout:  cfg.StallTimeout,
		RetainedBytes: cfg.RetainedBytes,
	}, cfg.SweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	engine := converter.NewConverter(logger)
	processor := service.NewProcessor(st, manager, engine, cfg.WorkerCount, logger)
	svc := service.NewConversionService(st, manager, processor, mirrorReader, objects, monitor, logger)

	handler := handlers.NewConversionHandler(svc, cfg.MaxFileSize, cfg.FastPathWait, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", handler.Upload)
	mux.HandleFunc("/convert", handler.Convert)
	mux.HandleFunc("/status/", handler.Status)
	mux.HandleFunc("/files/", handler.Download)
	mux.HandleFunc("/persist/", handler.Persist)
	mux.HandleFunc("/operations/", handler.DeleteOperation)
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/stats", handler.Stats)

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
	var root http.Handler = mux
	root = middleware.RateLimit(limiter)(root)
	root = middleware.Logging(logger, func() string { return monitor.Level().String() })(root)
	root = middleware.Recovery(logger)(root)
	root = middleware.TraceID(root)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: root,
	}

	go func() {
		logger.Info("Server started", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	processor.Wait()
	logger.Info("Shutdown completed")
}
