package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"golang.org/x/sync/errgroup"

	"github.com/splitpot/splitpot/internal/accounts"
	"github.com/splitpot/splitpot/internal/app"
	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/notify"
	"github.com/splitpot/splitpot/internal/observability"
	"github.com/splitpot/splitpot/internal/platform/cache"
	"github.com/splitpot/splitpot/internal/platform/db"
	"github.com/splitpot/splitpot/internal/transactions"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var notifier notify.Notifier
	switch cfg.NotifyQueue {
	case "worker":
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		notifier = notify.NewQueueNotifier(asynqClient)
	default:
		notifier = notify.NewRedisNotifier(redisClient)
	}

	groupService := group.NewService(group.NewRepository(pool))
	accountsService := accounts.NewService(accounts.NewRepository(pool), notifier, logger)
	transactionsService := transactions.NewService(transactions.NewRepository(pool), notifier, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             observability.NewMetrics(),
		GroupHandler:        group.NewHandler(logger, groupService),
		AccountsHandler:     accounts.NewHandler(logger, accountsService),
		TransactionsHandler: transactions.NewHandler(logger, transactionsService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      http.TimeoutHandler(router, cfg.AppRequestTimeout, "request timed out"),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
