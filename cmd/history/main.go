package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/history"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/rpc"
)

func main() {
	/**********************************************
	 * logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * configuration
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return
	}
	if err := cfg.RequireDatabase(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	/**********************************************
	 * database
	 **********************************************/
	dbpool, err := repository.Open(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return
	}
	defer dbpool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repository.Migrate(ctx, dbpool, repository.SchemaHistory); err != nil {
		logger.Error("failed to migrate database", "error", err)
		return
	}
	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	consumeCh, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		return
	}
	defer consumeCh.Close()

	if err := broker.DeclareEventTopology(consumeCh, cfg.RabbitMQ.Exchange); err != nil {
		logger.Error("failed to declare event topology", "error", err)
		return
	}

	rpcCh, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		return
	}
	defer rpcCh.Close()

	/**********************************************
	 * service
	 **********************************************/
	svc := history.NewService(repo, logger)
	consumer := broker.NewConsumer(consumeCh, broker.QueueSaveHistory, cfg.RabbitMQ.Prefetch, svc.HandleDelivery, logger)

	mux := rpc.NewMux(cfg.APIKey)
	svc.RegisterRoutes(mux)
	server := rpc.NewServer(rpcCh, rpc.QueueHistory, mux, cfg.RabbitMQ.Prefetch, logger)

	/**********************************************
	 * run until CTRL+C
	 **********************************************/
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx)
	}()
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run(ctx)
	}()
	logger.Info("history service is running", "queue", broker.QueueSaveHistory)

	select {
	case <-quit:
		logger.Info("shutting down history service...")
	case err := <-consumerDone:
		logger.Error("consumer stopped unexpectedly", "error", err)
		consumerDone <- err
	case err := <-serverDone:
		logger.Error("rpc server stopped unexpectedly", "error", err)
		serverDone <- err
	}
	cancel()
	<-consumerDone
	<-serverDone
	logger.Info("history service stopped")
}
