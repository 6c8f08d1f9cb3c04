package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/internal/api"
	"github.com/mohamadsalahdarwish/notication-system/internal/config"
	"github.com/mohamadsalahdarwish/notication-system/internal/gateway"
	"github.com/mohamadsalahdarwish/notication-system/internal/httpserver"
	"github.com/mohamadsalahdarwish/notication-system/internal/mqhandler"
	"github.com/mohamadsalahdarwish/notication-system/internal/presence"
	"github.com/mohamadsalahdarwish/notication-system/internal/repository"
	"github.com/mohamadsalahdarwish/notication-system/internal/service"
	"github.com/mohamadsalahdarwish/notication-system/pkg/db"
	"github.com/mohamadsalahdarwish/notication-system/pkg/logger"
	"github.com/mohamadsalahdarwish/notication-system/pkg/mq"
	"github.com/mohamadsalahdarwish/notication-system/pkg/outbox"
	pkgredis "github.com/mohamadsalahdarwish/notication-system/pkg/redis"
	"github.com/mohamadsalahdarwish/notication-system/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notification router...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("presence_backend", cfg.Presence.Backend),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ publisher + DLQ topology
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := declareDLQ(cfg.MQ.URL); err != nil {
		log.Fatal("Failed to declare DLQ topology", zap.Error(err))
	}

	// Repositories (leaves first)
	userRepo := repository.NewUserRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	pendingRepo := repository.NewPendingNotificationRepository(dbConn, log)

	// Presence registry
	var registry presence.Registry
	switch cfg.Presence.Backend {
	case "memory":
		registry = presence.NewMemoryRegistry()
	default:
		registry = presence.NewRedisRegistry(rdb)
	}

	// Session gateway
	hub := gateway.NewHub(registry, log)

	// Services
	router := service.NewRouter(userRepo, registry, publisher, pendingRepo, log)
	retrieval := service.NewRetrievalService(pendingRepo, log)

	// MQ handlers
	retryCounter := util.NewRetryCounter(rdb, time.Duration(cfg.Ingest.RetryTTLSeconds)*time.Second)
	cdcHandler := mqhandler.NewCDCEventHandler(
		router,
		retryCounter,
		publisher,
		cfg.Ingest.MaxRetries,
		time.Duration(cfg.Ingest.BackoffMillis)*time.Millisecond,
		log,
	)
	liveHandler := mqhandler.NewLiveDeliveryHandler(hub, log)

	// CDC consumer: one sequential consumer keeps per-partition order.
	cdcConsumer, err := mq.NewConsumer(cfg.MQ.URL, "cdc.notifications.q", mqcontracts.RoutingKeyNotificationInserted, log)
	if err != nil {
		log.Fatal("Failed to init CDC consumer", zap.Error(err))
	}
	defer cdcConsumer.Close()
	cdcConsumer.SetHandler(cdcHandler.Handle)

	// Live relay consumer for the session gateway.
	liveConsumer, err := mq.NewConsumer(cfg.MQ.URL, "notify.live.q", mqcontracts.RoutingKeyLivePattern, log)
	if err != nil {
		log.Fatal("Failed to init live consumer", zap.Error(err))
	}
	defer liveConsumer.Close()
	liveConsumer.SetHandler(liveHandler.Handle)

	go func() {
		if err := cdcConsumer.StartConsuming(); err != nil {
			log.Fatal("CDC consumer failed", zap.Error(err))
		}
	}()
	go func() {
		if err := liveConsumer.StartConsuming(); err != nil {
			log.Fatal("Live consumer failed", zap.Error(err))
		}
	}()

	// Outbox dispatcher: turns committed notification inserts into the
	// change stream the CDC consumer feeds on.
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	dispatcher := outbox.NewDispatcher(outbox.NewRepository(dbConn), publisher, log)
	if cfg.Outbox.MaxRetries > 0 {
		dispatcher = dispatcher.WithMaxRetries(cfg.Outbox.MaxRetries)
	}
	if cfg.Outbox.IntervalMillis > 0 {
		dispatcher = dispatcher.WithInterval(time.Duration(cfg.Outbox.IntervalMillis) * time.Millisecond)
	}
	if cfg.Outbox.BatchSize > 0 {
		dispatcher = dispatcher.WithBatchSize(cfg.Outbox.BatchSize)
	}
	go dispatcher.Start(dispatcherCtx)

	// HTTP
	authHandler := api.NewAuthHandler(userRepo, registry, cfg.JWT.Secret, log)
	notificationHandler := api.NewNotificationHandler(notificationRepo, retrieval, log)
	wsHandler := api.NewWSHandler(hub, retrieval, cfg.JWT.Secret, log)

	httpRouter := httpserver.NewRouter(authHandler, notificationHandler, wsHandler, cfg.JWT.Secret)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: httpRouter.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification router is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")

	// Consumers finish their in-flight event before stopping.
	cdcConsumer.Stop()
	liveConsumer.Stop()
	dispatcherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// declareDLQ sets up the dead-letter exchange and the queue for poison CDC
// events.
func declareDLQ(url string) error {
	conn, err := mq.NewConnection(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := mq.DeclareDLQExchange(ch); err != nil {
		return err
	}
	if _, err := mq.DeclareDLQQueue(ch, mqcontracts.RoutingKeyNotificationInserted); err != nil {
		return err
	}
	return nil
}
