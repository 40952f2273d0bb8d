package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/agrichain-api/internal/config"
	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/handler"
	"github.com/flicky/agrichain-api/internal/ledger"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/repository"
	"github.com/flicky/agrichain-api/internal/repository/memstore"
	"github.com/flicky/agrichain-api/internal/service"
	"github.com/flicky/agrichain-api/internal/session"
	"github.com/flicky/agrichain-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var (
		repos     repository.Repositories
		store     handler.Pinger
		storeName string
	)
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		local, err := memstore.Open(cfg.Store.SQLitePath)
		if err != nil {
			log.Error("open local store", "error", err, "path", cfg.Store.SQLitePath)
			os.Exit(1)
		}
		defer local.Close()
		repos, store, storeName = local.Repositories(), local, "sqlite"
		log.Info("opened local store", "path", local.Path())
	default:
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
		if err != nil {
			log.Error("parse db config", "error", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = cfg.DB.MaxConns

		dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		if err := repository.Migrate(ctx, dbPool, log); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		repos, store, storeName = repository.NewPostgres(dbPool), dbPool, "postgres"
		log.Info("connected to PostgreSQL")
	}

	// Redis
	var redisClient *redis.Client
	var sessions session.Store = session.NewMemoryStore()
	var deduper worker.Deduper = worker.NewMemoryDeduper()
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		sessions = session.NewRedisStore(redisClient)
		deduper = worker.NewRedisDeduper(redisClient)
		log.Info("connected to Redis")
	} else {
		log.Warn("Redis disabled, sessions kept in memory and journeys uncached")
	}

	// RabbitMQ
	var (
		amqpConn     *amqp.Connection
		publisher    events.Publisher
		ledgerWorker *worker.LedgerWorker
	)
	if cfg.RabbitMQ.Enabled() {
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		pubCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer pubCh.Close()

		if err := events.SetupRabbitMQ(pubCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}
		publisher = events.NewAMQPPublisher(pubCh)

		consumeCh, err := amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ consumer channel", "error", err)
			os.Exit(1)
		}
		defer consumeCh.Close()
		if err := consumeCh.Qos(1, 0, false); err != nil {
			log.Error("set consumer QoS", "error", err)
			os.Exit(1)
		}
		ledgerWorker = worker.NewLedgerWorker(consumeCh, ledger.NewLogLedger(log), deduper, log)
		log.Info("connected to RabbitMQ")
	} else {
		log.Warn("RabbitMQ disabled, custody events are not published")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Services
	journeySvc := service.NewJourneyService(repos, redisClient, cfg.Journey.CacheTTL, m, log)
	svc := handler.Services{
		Identity: service.NewIdentityService(repos.Users, sessions, cfg.JWT.Secret, cfg.JWT.Expiration),
		Products: service.NewProductService(repos.Products, publisher, m, log),
		Workflow: service.NewWorkflowService(repos, journeySvc, publisher, m, log),
		Journeys: journeySvc,
	}

	// Router
	healthH := handler.NewHealthHandler(store, storeName, redisClient, amqpConn)
	router := handler.NewRouter(svc, healthH, m)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if ledgerWorker != nil {
		if err := ledgerWorker.Start(ctx); err != nil {
			log.Error("start ledger worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port, "store", storeName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if ledgerWorker != nil {
		ledgerWorker.Stop()
		time.Sleep(500 * time.Millisecond)
	}
	cancel()
	log.Info("server stopped")
}
