package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"google.golang.org/grpc"

	"github.com/rl1809/half-order/internal/adapter/clock"
	"github.com/rl1809/half-order/internal/adapter/handler"
	"github.com/rl1809/half-order/internal/adapter/handler/rpc"
	"github.com/rl1809/half-order/internal/adapter/notify"
	"github.com/rl1809/half-order/internal/adapter/storage"
	"github.com/rl1809/half-order/internal/config"
	"github.com/rl1809/half-order/internal/core/service"
	"github.com/rl1809/half-order/internal/port"
	"github.com/rl1809/half-order/internal/sweeper"
)

type store struct {
	port.SessionStore
	migrate func(ctx context.Context) error
	close   func()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize store, plus a small pool the sweeper owns
	primary, err := openStore(ctx, cfg.Store, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
	if err != nil {
		return err
	}
	defer primary.close()
	logger.Info("connected to store", "driver", cfg.Store.Driver)

	sweepStore, err := openStore(ctx, cfg.Store, cfg.Store.SweeperConns, cfg.Store.SweeperConns)
	if err != nil {
		return err
	}
	defer sweepStore.close()

	if cfg.Store.Migrate {
		if err := primary.migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Event publishers
	var publishers []port.Publisher
	var kafkaWriter *kafka.Writer
	if brokers := notify.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		kafkaWriter = notify.NewKafkaWriter(brokers, cfg.Kafka.EventsTopic)
		publishers = append(publishers, notify.NewKafkaPublisher(kafkaWriter))
		logger.Info("kafka publisher enabled", "topic", cfg.Kafka.EventsTopic)
	}

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("half-order"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		publishers = append(publishers, notify.NewNATSPublisher(nc, cfg.NATS.EventsSubjectPrefix))
		logger.Info("connected to nats", "url", cfg.NATS.URL)
	}

	dispatcher := notify.NewDispatcher(cfg.HalfOrder.NotifyQueue, cfg.HalfOrder.NotifyWorkers, logger, publishers...)

	// Initialize engine
	engineCfg := service.Config{
		SessionTTL:     cfg.HalfOrder.SessionTTL,
		CancelWindow:   cfg.HalfOrder.CancelWindow,
		DefaultJoinFee: cfg.HalfOrder.JoinFee,
		AllowMultiJoin: cfg.HalfOrder.AllowMultiJoin,
	}
	engine := service.NewSessionService(primary, dispatcher, clock.System{}, engineCfg,
		service.WithIdempotency(redisAdapter),
		service.WithLogger(logger),
	)
	sweepEngine := service.NewSessionService(sweepStore, dispatcher, clock.System{}, engineCfg,
		service.WithLogger(logger),
	)

	sw := sweeper.New(sweepEngine, redisAdapter, cfg.HalfOrder.SweepInterval, logger)
	sw.Start(ctx)

	var listener *notify.KitchenListener
	if nc != nil {
		listener = notify.NewKitchenListener(nc, cfg.NATS.KitchenSubject, engine, logger)
		if err := listener.Start(); err != nil {
			return err
		}
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	rpc.RegisterHalfOrderServer(grpcServer, handler.NewGRPCHandler(engine, logger))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewHTTPHandler(engine, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if listener != nil {
		if err := listener.Stop(); err != nil {
			logger.Warn("kitchen listener stop", "error", err)
		}
	}
	sw.Stop()

	dispatcher.Close()
	logger.Info("notifications drained")

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Warn("kafka writer close", "error", err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, maxOpen, maxIdle int) (*store, error) {
	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		poolCfg.MaxConns = int32(maxOpen)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		adapter := storage.NewPostgresAdapter(pool)
		return &store{SessionStore: adapter, migrate: adapter.Migrate, close: pool.Close}, nil

	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		return &store{SessionStore: adapter, migrate: adapter.Migrate, close: func() { db.Close() }}, nil
	}
}
