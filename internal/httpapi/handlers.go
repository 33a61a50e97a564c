package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"payments/internal/payment"
)

// PaymentService is what the handlers need from payment.Service.
type PaymentService interface {
	CreatePayment(ctx context.Context, userID uuid.UUID, items []string) (uuid.UUID, payment.Status, error)
	GetPayment(ctx context.Context, id uuid.UUID) (payment.Payment, error)
	ListPayments(ctx context.Context) ([]payment.Payment, error)
	TransitionPayment(ctx context.Context, id uuid.UUID, target payment.Status) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	ListEventsForPayment(ctx context.Context, id uuid.UUID) ([]payment.DomainEvent, error)
	ListPaymentsWithUser(ctx context.Context) ([]payment.UserPayment, error)
}

type CreatePaymentRequest struct {
	UserID uuid.UUID `json:"UserId"`
	Items  []string  `json:"Items"`
}

type CreatePaymentResponse struct {
	ID     uuid.UUID      `json:"id"`
	Status payment.Status `json:"status"`
}

type DeletePaymentResponse struct {
	Deleted bool `json:"deleted"`
}

func createPaymentHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, status, err := svc.CreatePayment(r.Context(), req.UserID, req.Items)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Location", "/payments/"+id.String())
		writeJSON(w, http.StatusCreated, CreatePaymentResponse{ID: id, Status: status})
	}
}

func getPaymentHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		p, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listPaymentsHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPayments(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func transitionPaymentHandler(svc PaymentService, logger *slog.Logger, target payment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.TransitionPayment(r.Context(), id, target); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deletePaymentHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := svc.DeletePayment(r.Context(), id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, DeletePaymentResponse{Deleted: true})
	}
}

func listEventsHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		events, err := svc.ListEventsForPayment(r.Context(), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func listPaymentsWithUserHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPaymentsWithUser(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Not-found and bad input are
// client errors; everything else is a server error.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, payment.ErrInvalidRequest), errors.Is(err, payment.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
