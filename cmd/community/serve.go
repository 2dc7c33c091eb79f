package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeee/community/api"
	"github.com/edgeee/community/api/validator"
	"github.com/edgeee/community/community"
	"github.com/edgeee/community/config"
	"github.com/edgeee/community/identity"
	"github.com/edgeee/community/inmem"
	"github.com/edgeee/community/nats"
	"github.com/edgeee/community/postgres"
	"github.com/edgeee/community/redis"
	"github.com/edgeee/community/s3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the HTTP server",
	RunE:  runServe,
}

const shutdownTimeout = 15 * time.Second

func newLogger(debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Debug)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Error("Could not close resource", "error", err.Error())
			}
		}
	}()

	a := &api.API{
		Logger:          logger,
		Val:             validator.New(),
		FeedConcurrency: cfg.FeedConcurrency,
		Auth: &identity.Middleware{
			Manager: identity.NewManager(cfg.JWTSecret),
			Logger:  logger,
			Public:  []string{"/healthz"},
		},
	}
	mux := http.NewServeMux()
	mux.Handle("/", a)

	var pgFeed community.ChangeFeed
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, pg)
		if err := pg.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		a.DB = pg
		logger.Info("Connected to Postgres")

		if cfg.NATSURL == "" || cfg.NATSRelay {
			ln, err := pg.Listen(ctx, logger)
			if err != nil {
				return err
			}
			closers = append(closers, ln)
			go func() {
				if err := ln.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Listener stopped", "error", err.Error())
				}
			}()
			pgFeed = ln
		}

	case config.StoreMemory:
		db := inmem.New()
		a.DB = db
		pgFeed = db
		logger.Warn("Using in-memory store, data is lost on restart")
	}
	a.Feed = pgFeed

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(nats.Config{URL: cfg.NATSURL, Name: "community"}, logger)
		if err != nil {
			return err
		}
		closers = append(closers, nc)
		if pgFeed != nil {
			sub, err := pgFeed.SubscribeMessages(ctx, "", nc.Forward)
			if err != nil {
				return fmt.Errorf("relay messages: %w", err)
			}
			defer sub.Unsubscribe()
			logger.Info("Relaying chat messages to NATS")
		}
		a.Feed = nc
	}

	if cfg.RedisAddr != "" {
		cache, err := redis.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		closers = append(closers, cache)
		a.Cache = cache
		logger.Info("Caching profiles in Redis", "addr", cfg.RedisAddr)
	}

	if cfg.S3.Bucket != "" {
		store, err := s3.New(s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			return err
		}
		a.Content = store
	} else {
		store := inmem.NewStore("/media")
		mux.Handle("/media/", http.StripPrefix("/media/", store))
		a.Content = store
		logger.Warn("No S3 bucket configured, images are kept in memory")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr, "store", cfg.Store)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
