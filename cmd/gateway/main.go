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

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/clock"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/handler"
	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/notification"
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

	/**********************************************
	 * rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	// one channel per client, each consumes its own direct replies
	rpcTimeout := time.Duration(cfg.RabbitMQ.RPCTimeout) * time.Second
	clients := make(map[string]rpc.Client)
	for _, queue := range []string{rpc.QueueAuth, rpc.QueueEmployee, rpc.QueueHistory} {
		ch, err := conn.Channel()
		if err != nil {
			logger.Error("failed to open channel", "queue", queue, "error", err)
			return
		}
		defer ch.Close()

		client, err := rpc.NewAMQPClient(ch, queue, cfg.APIKey, rpcTimeout)
		if err != nil {
			logger.Error("failed to create rpc client", "queue", queue, "error", err)
			return
		}
		clients[queue] = client
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

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return
	}

	stream := notification.NewStream(rdb, cfg.Notification.StreamKey, cfg.Notification.StreamMaxLen, time.Duration(cfg.Notification.DedupTTL)*time.Second, time.Duration(cfg.Redis.OperationExpiration)*time.Second)

	/**********************************************
	 * handler
	 **********************************************/
	h, err := handler.NewHandler(cfg, clock.New(cfg.Location()), clients[rpc.QueueAuth], clients[rpc.QueueEmployee], clients[rpc.QueueHistory], stream)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		return
	}
	h.RegisterRoutes()

	/**********************************************
	 * http server
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      h.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting gateway", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway stopped unexpectedly", slog.String("error", err.Error()))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down gateway", slog.String("error", err.Error()))
	}
	logger.Info("gateway stopped")
}
