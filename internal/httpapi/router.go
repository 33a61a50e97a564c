package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"payments/internal/payment"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires the payment routes, /healthz and, when metrics is non-nil,
// /metrics.
func NewRouter(svc PaymentService, db Pinger, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /payments", createPaymentHandler(svc, logger))
	mux.HandleFunc("GET /payments", listPaymentsHandler(svc, logger))
	mux.HandleFunc("GET /payments/full", listPaymentsWithUserHandler(svc, logger))
	mux.HandleFunc("GET /payments/{id}", getPaymentHandler(svc, logger))
	mux.HandleFunc("PUT /payments/{id}/approve", transitionPaymentHandler(svc, logger, payment.StatusApproved))
	mux.HandleFunc("PUT /payments/{id}/reject", transitionPaymentHandler(svc, logger, payment.StatusRejected))
	mux.HandleFunc("PUT /payments/{id}/cancel", transitionPaymentHandler(svc, logger, payment.StatusCanceled))
	mux.HandleFunc("DELETE /payments/{id}", deletePaymentHandler(svc, logger))
	mux.HandleFunc("GET /payments/{id}/events", listEventsHandler(svc, logger))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return logRequests(mux, logger)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
