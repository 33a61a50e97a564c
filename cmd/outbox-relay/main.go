package main

import (
	"context"
	"errors"
	"flag"
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
	"payments/internal/logging"
	"payments/internal/metrics"
	"payments/internal/payment"
	"payments/internal/relay"
	"payments/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAYMENTS_CONFIG"), "path to a YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address serving /metrics, empty to disable")
	flag.Parse()

	if err := run(*configPath, *metricsAddr); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log)

	if cfg.Payments.Delivery != config.DeliveryOutbox {
		logger.Warn("payments.delivery is not outbox; the API publishes directly and relayed events may be delivered twice",
			slog.String("delivery", cfg.Payments.Delivery))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := database.OpenPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	var publisher payment.Publisher
	switch cfg.Relay.Sink {
	case config.SinkKafka:
		kp := broker.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	default:
		publisher = broker.NewAMQPPublisher(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Queue, logger)
	}

	m := metrics.New()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", slog.Any("error", err))
			}
		}()
		defer server.Close()
	}

	r := relay.New(relay.StoreSource{Store: store.New(dbpool)}, publisher, cfg.Relay.BatchSize, cfg.Relay.Interval, m, logger)

	logger.Info("outbox relay started",
		slog.String("sink", cfg.Relay.Sink),
		slog.Duration("interval", cfg.Relay.Interval),
		slog.Int("batch_size", cfg.Relay.BatchSize),
	)
	return r.Run(ctx)
}
