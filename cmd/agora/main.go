// Command agora runs the debate service: an HTTP API that schedules
// multi-agent debates, caches semantically similar responses, and
// streams turns to spectators over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/debatelab/agora/internal/archive"
	"github.com/debatelab/agora/internal/config"
	"github.com/debatelab/agora/internal/debate"
	"github.com/debatelab/agora/internal/embedding"
	"github.com/debatelab/agora/internal/events"
	"github.com/debatelab/agora/internal/handlers"
	"github.com/debatelab/agora/internal/llm"
	"github.com/debatelab/agora/internal/metrics"
	"github.com/debatelab/agora/internal/notifications"
	"github.com/debatelab/agora/internal/pipeline"
	"github.com/debatelab/agora/internal/profiles"
	"github.com/debatelab/agora/internal/router"
	"github.com/debatelab/agora/internal/semcache"
	"github.com/debatelab/agora/internal/transcript"
	"github.com/debatelab/agora/internal/vectorstore"
)

func main() {
	// Load environment variables from .env file (if present).
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Debug("Could not load .env file")
	}

	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Application failed")
	}
}

func newLogger(cfg config.MonitoringConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.Monitoring)

	gin.SetMode(cfg.Server.Mode)

	// Redis backs transcripts and agent profiles; without it no debate
	// can persist a single turn.
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
	err := rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		return fmt.Errorf("redis unavailable at %s: %w", cfg.Redis.Addr(), err)
	}
	logger.WithField("addr", cfg.Redis.Addr()).Info("Connected to Redis")

	// The vector index is optional: when Qdrant is down the semantic
	// cache reports disabled and every lookup is a miss.
	embedder := embedding.NewOpenAIEmbedder(cfg.Embedding, logger)

	var cacheIndex semcache.VectorIndex
	var janitor *vectorstore.Janitor
	if cfg.Cache.Enabled {
		qdrant, qerr := vectorstore.NewClient(cfg.Qdrant, logger)
		if qerr == nil {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Qdrant.Timeout)
			qerr = qdrant.Connect(ctx)
			if qerr == nil {
				qerr = qdrant.EnsureCollection(ctx)
			}
			cancel()
		}
		if qerr != nil {
			logger.WithError(qerr).Warn("Qdrant unavailable, semantic cache disabled")
		} else {
			cacheIndex = qdrant
			janitor = vectorstore.NewJanitor(qdrant, cfg.Qdrant.JanitorInterval, logger)
		}
	}

	respCache := semcache.NewCache(cfg.Cache, embedder, cacheIndex, logger)

	collector := metrics.NewCollector()
	respCache.SetRecorder(collector)

	provider, err := llm.NewOpenAIProvider(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	transcriptLog := transcript.NewLog(rdb, cfg.Debate, logger)
	profileStore := profiles.NewStore(rdb, logger)

	// Seed the agent roster. Existing profiles are never overwritten,
	// so live stance drift survives restarts.
	if cfg.Debate.RosterPath != "" {
		roster, rerr := config.LoadRoster(cfg.Debate.RosterPath)
		switch {
		case errors.Is(rerr, os.ErrNotExist):
			logger.WithField("path", cfg.Debate.RosterPath).Warn("No agent roster file, starting with an empty profile store")
		case rerr != nil:
			return fmt.Errorf("agent roster: %w", rerr)
		default:
			seedCtx, seedCancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
			_, serr := profileStore.Seed(seedCtx, roster)
			seedCancel()
			if serr != nil {
				return fmt.Errorf("seed agent roster: %w", serr)
			}
		}
	}

	bus := events.NewBus(nil)

	hub := notifications.NewHub(nil, bus, logger)
	hub.Start()

	var mirror *events.KafkaMirror
	if cfg.Kafka.Enabled() {
		mirror = events.NewKafkaMirror(events.KafkaMirrorConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, bus, logger)
		mirror.Start()
		logger.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		}).Info("Kafka event mirror started")
	}

	// Session archive is optional; debates run fine without Postgres.
	var sessionArchive debate.SessionArchive
	var archivePool *pgxpool.Pool
	if cfg.Archive.Enabled() {
		pool, aerr := archive.Connect(context.Background(), cfg.Archive.DatabaseURL)
		if aerr != nil {
			logger.WithError(aerr).Warn("Postgres unavailable, session archive disabled")
		} else {
			repo := archive.New(pool, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			aerr = repo.CreateTable(ctx)
			cancel()
			if aerr != nil {
				logger.WithError(aerr).Warn("Could not prepare archive schema, session archive disabled")
				pool.Close()
			} else {
				sessionArchive = repo
				archivePool = pool
			}
		}
	}
	defer func() {
		if archivePool != nil {
			archivePool.Close()
		}
	}()

	generator := pipeline.NewGenerator(cfg.LLM, cfg.Debate, provider, respCache, profileStore, transcriptLog, logger)
	registry := debate.NewRegistry(cfg.Debate.StartCooldown, logger)
	scheduler := debate.NewScheduler(cfg.Debate, registry, generator, transcriptLog, profileStore, bus, sessionArchive, collector, logger)

	deps := router.Deps{
		Debates:     handlers.NewDebateHandler(scheduler, transcriptLog, logger),
		Agents:      handlers.NewAgentHandler(profileStore, logger),
		Cache:       handlers.NewCacheHandler(respCache),
		Hub:         hub,
		MetricsPath: cfg.Monitoring.MetricsPath,
	}
	if cfg.Monitoring.MetricsEnabled {
		deps.Metrics = collector.Handler()
	}
	engine := router.SetupRouter(deps)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	g, gctx := errgroup.WithContext(backgroundCtx)
	if janitor != nil {
		g.Go(func() error {
			janitor.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":          cfg.Server.Addr(),
			"cache_enabled": respCache.IsEnabled(),
			"archive":       sessionArchive != nil,
			"kafka":         mirror != nil,
		}).Info("Starting agora server")

		if serr := server.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", serr)
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutdown signal received")
	case <-gctx.Done():
		// Server error; tear down and report it through g.Wait.
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Refuse new requests first, then drain running debates so their
	// final events still reach the hub and the mirror.
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.WithError(serr).Error("Server forced to shutdown")
	}
	scheduler.Shutdown(shutdownCtx)
	hub.Stop()
	if mirror != nil {
		mirror.Stop()
	}
	stopBackground()
	bus.Close()

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
