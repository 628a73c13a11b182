package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"weatherstream/internal/config"
	"weatherstream/internal/consumer"
	"weatherstream/internal/db"
	"weatherstream/internal/httpapi"
	"weatherstream/internal/migrate"
	"weatherstream/internal/store"
)

const shutdownTimeout = 10 * time.Second

// RunConsumer runs the consumer loop and, when HTTP_ADDR is set, the read
// API. On interrupt the HTTP server stops first; the loop then closes the
// subscriber and the pool.
func RunConsumer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateConsumer(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded",
		"topic", cfg.KafkaTopic,
		"group", cfg.KafkaConsumerGroup,
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"storeTimeout", cfg.StoreTimeout,
	)

	pool, err := db.Open(db.Options{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		Path:            cfg.SQLitePath,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogSQL:          cfg.LogSQL,
	}, logger)
	if err != nil {
		return err
	}
	st := store.New(pool, logger)
	if err := migrate.Run(ctx, pool, logger); err != nil {
		_ = st.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	sub, err := newSubscriber(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("connect broker: %w", err)
	}

	loop := consumer.New(sub, st, consumer.Options{
		StoreTimeout: cfg.StoreTimeout,
		Backoff:      cfg.FetchErrorBackoff,
		Logger:       logger,
	})
	if cfg.HTTPAddr == "" {
		return loop.Run(ctx)
	}
	return serveWithLoop(ctx, httpapi.NewServer(cfg.HTTPAddr, st, logger), loop, logger)
}

type runner interface {
	Run(ctx context.Context) error
}

// serveWithLoop runs srv and loop until ctx is done or either fails. The
// loop keeps running until the server has shut down.
func serveWithLoop(ctx context.Context, srv *http.Server, loop runner, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()

	g.Go(func() error {
		return loop.Run(loopCtx)
	})
	g.Go(func() error {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopLoop()

		logger.Info("http shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return ctxErr
	}
	return err
}
