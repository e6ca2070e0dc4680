package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/attendance"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/employee"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/outbox"
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

	if err := repository.Migrate(ctx, dbpool, repository.SchemaEmployee); err != nil {
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

	channels := make([]*amqp.Channel, 3)
	for i := range channels {
		ch, err := conn.Channel()
		if err != nil {
			logger.Error("failed to open channel", "error", err)
			return
		}
		defer ch.Close()
		channels[i] = ch
	}
	publishCh, authCh, rpcCh := channels[0], channels[1], channels[2]

	if err := broker.DeclareEventTopology(publishCh, cfg.RabbitMQ.Exchange); err != nil {
		logger.Error("failed to declare event topology", "error", err)
		return
	}
	if err := broker.DeclareMailQueue(publishCh); err != nil {
		logger.Error("failed to declare mail queue", "error", err)
		return
	}
	publisher, err := broker.NewPublisher(publishCh, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		return
	}

	authClient, err := rpc.NewAMQPClient(authCh, rpc.QueueAuth, cfg.APIKey, time.Duration(cfg.RabbitMQ.RPCTimeout)*time.Second)
	if err != nil {
		logger.Error("failed to create auth client", "error", err)
		return
	}

	/**********************************************
	 * services
	 **********************************************/
	clk := clock.New(cfg.Location())
	dispatcher := outbox.NewDispatcher(
		repo,
		publisher,
		time.Duration(cfg.Outbox.PollInterval)*time.Second,
		cfg.Outbox.BatchSize,
		cfg.Outbox.MaxAttempts,
		logger,
	)
	employees := employee.NewService(repo, authClient, dispatcher, clk, cfg.RabbitMQ.Exchange, cfg.Email.PortalURL, logger)
	attendances := attendance.NewService(repo, clk, logger)

	mux := rpc.NewMux(cfg.APIKey)
	employees.RegisterRoutes(mux)
	attendances.RegisterRoutes(mux)
	server := rpc.NewServer(rpcCh, rpc.QueueEmployee, mux, cfg.RabbitMQ.Prefetch, logger)

	/**********************************************
	 * run until CTRL+C
	 **********************************************/
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()
	logger.Info("employee service is listening", "queue", rpc.QueueEmployee)

	select {
	case <-quit:
		logger.Info("shutting down employee service...")
		cancel()
		<-done
	case err := <-done:
		logger.Error("rpc server stopped unexpectedly", "error", err)
		cancel()
	}
	wg.Wait()
	logger.Info("employee service stopped")
}
