package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payments/internal/broker"
	"payments/internal/config"
	"payments/internal/database"
	"payments/internal/httpapi"
	"payments/internal/logging"
	"payments/internal/metrics"
	"payments/internal/payment"
	"payments/internal/pkg/clock"
	"payments/internal/store"
	"payments/internal/users"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAYMENTS_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenSQL(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}

	dbpool, err := database.OpenPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	m := metrics.New()
	st := store.New(dbpool)
	svc := payment.NewService(payment.Deps{
		Payments:  st,
		Events:    st,
		Outbox:    st,
		Users:     users.NewDirectory(db),
		Publisher: broker.NewAMQPPublisher(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Queue, logger),
		Clock:     clock.NewRealClock(),
		Delivery:  payment.Delivery(cfg.Payments.Delivery),
		Metrics:   m,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(svc, dbpool, m.Handler(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("delivery", cfg.Payments.Delivery),
			slog.String("queue", cfg.RabbitMQ.Queue),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
