package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/broker"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/notification"
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

	/**********************************************
	 * redis
	 **********************************************/
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DB:          0,
		DialTimeout: time.Duration(cfg.Redis.ConnectTimeout) * time.Second,
		// lets the per-operation deadlines of the stream cut slow calls short
		ContextTimeoutEnabled: true,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return
	}

	/**********************************************
	 * rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		return
	}
	defer ch.Close()

	if err := broker.DeclareEventTopology(ch, cfg.RabbitMQ.Exchange); err != nil {
		logger.Error("failed to declare event topology", "error", err)
		return
	}

	/**********************************************
	 * service
	 **********************************************/
	stream := notification.NewStream(rdb, cfg.Notification.StreamKey, cfg.Notification.StreamMaxLen, time.Duration(cfg.Notification.DedupTTL)*time.Second, time.Duration(cfg.Redis.OperationExpiration)*time.Second)
	svc := notification.NewService(stream, logger)
	consumer := broker.NewConsumer(ch, broker.QueueAdminNotification, cfg.RabbitMQ.Prefetch, svc.HandleDelivery, logger)

	/**********************************************
	 * run until CTRL+C
	 **********************************************/
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx)
	}()
	logger.Info("notification service is running", "queue", broker.QueueAdminNotification)

	select {
	case <-quit:
		logger.Info("shutting down notification service...")
		cancel()
		<-done
	case err := <-done:
		logger.Error("consumer stopped unexpectedly", "error", err)
	}
	logger.Info("notification service stopped")
}
