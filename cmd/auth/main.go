package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/auth"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
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
	if err := cfg.RequireJWT(); err != nil {
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

	if err := repository.Migrate(ctx, dbpool, repository.SchemaAuth); err != nil {
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

	mailCh, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		return
	}
	defer mailCh.Close()

	if err := broker.DeclareMailQueue(mailCh); err != nil {
		logger.Error("failed to declare mail queue", "error", err)
		return
	}
	publisher, err := broker.NewPublisher(mailCh, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
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
	clk := clock.New(cfg.Location())
	tokens := auth.NewTokens(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		time.Duration(cfg.JWT.AccessExpiration)*time.Second,
		time.Duration(cfg.JWT.RefreshExpiration)*time.Second,
		clk,
	)
	svc := auth.NewService(repo, tokens, publisher, clk, cfg.Auth.DefaultUserPassword, logger)

	if err := svc.EnsureInitialAdmin(ctx, cfg.InitialAdmin.Email, cfg.InitialAdmin.Password); err != nil {
		logger.Error("failed to ensure initial admin", "error", err)
		return
	}

	mux := rpc.NewMux(cfg.APIKey)
	svc.RegisterRoutes(mux)
	server := rpc.NewServer(rpcCh, rpc.QueueAuth, mux, cfg.RabbitMQ.Prefetch, logger)

	/**********************************************
	 * run until CTRL+C
	 **********************************************/
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()
	logger.Info("auth service is listening", "queue", rpc.QueueAuth)

	select {
	case <-quit:
		logger.Info("shutting down auth service...")
		cancel()
		<-done
	case err := <-done:
		logger.Error("rpc server stopped unexpectedly", "error", err)
	}
	logger.Info("auth service stopped")
}
