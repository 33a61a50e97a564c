package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payments/internal/broker"
	"payments/internal/metrics"
	"payments/internal/pkg/clock"
)

// Delivery selects how CreatePayment gets its event to the broker.
type Delivery string

const (
	// DeliveryDirect writes the payment, then the event, then publishes, with
	// no transaction across the three. A failure leaves earlier writes behind.
	DeliveryDirect Delivery = "direct"
	// DeliveryOutbox writes payment and event in one transaction and leaves
	// publishing to the outbox relay.
	DeliveryOutbox Delivery = "outbox"
)

// Deps are the collaborators of Service. Outbox is required only with
// DeliveryOutbox, Publisher only with DeliveryDirect.
type Deps struct {
	Payments  PaymentStore
	Events    EventLog
	Outbox    OutboxWriter
	Users     UserDirectory
	Publisher Publisher
	Clock     clock.Clock
	Delivery  Delivery
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service is the payment lifecycle.
type Service struct {
	payments  PaymentStore
	events    EventLog
	outbox    OutboxWriter
	users     UserDirectory
	publisher Publisher
	clock     clock.Clock
	delivery  Delivery
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(deps Deps) *Service {
	s := &Service{
		payments:  deps.Payments,
		events:    deps.Events,
		outbox:    deps.Outbox,
		users:     deps.Users,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		delivery:  deps.Delivery,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}
	if s.delivery == "" {
		s.delivery = DeliveryDirect
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreatePayment records a pending payment, logs a PaymentRequested event and,
// in direct delivery, publishes it. Steps run strictly in that order and the
// first failure is returned; nothing already written is undone.
func (s *Service) CreatePayment(ctx context.Context, userID uuid.UUID, items []string) (uuid.UUID, Status, error) {
	if userID == uuid.Nil {
		return uuid.Nil, "", fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if items == nil {
		return uuid.Nil, "", fmt.Errorf("%w: items are required", ErrInvalidRequest)
	}

	p := Payment{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: s.clock.Now(),
	}
	logger := s.logger.With(slog.String("payment_id", p.ID.String()), slog.String("user_id", userID.String()))

	if s.delivery == DeliveryOutbox {
		return s.createWithOutbox(ctx, logger, p, items)
	}

	if err := s.payments.InsertPayment(ctx, p); err != nil {
		s.metrics.CreateFailed("store")
		return uuid.Nil, "", fmt.Errorf("create payment: %w", err)
	}

	event, err := newPaymentRequestedEvent(p, items)
	if err != nil {
		s.metrics.CreateFailed("encode")
		logger.Error("payment stored without event", slog.Any("error", err))
		return uuid.Nil, "", err
	}
	if err := s.events.AppendEvent(ctx, event); err != nil {
		s.metrics.CreateFailed("event_log")
		logger.Error("payment stored without event", slog.Any("error", err))
		return uuid.Nil, "", fmt.Errorf("append %s event: %w", event.Type, err)
	}

	msg := PaymentRequestedMessage{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Items:     items,
		Timestamp: p.CreatedAt,
	}
	if err := s.publish(ctx, msg); err != nil {
		s.metrics.CreateFailed("publish")
		logger.Error("payment stored without broker notification", slog.Any("error", err))
		return uuid.Nil, "", err
	}

	s.metrics.PaymentCreated()
	logger.Info("payment created", slog.String("delivery", string(s.delivery)))
	return p.ID, p.Status, nil
}

func (s *Service) createWithOutbox(ctx context.Context, logger *slog.Logger, p Payment, items []string) (uuid.UUID, Status, error) {
	event, err := newPaymentRequestedEvent(p, items)
	if err != nil {
		s.metrics.CreateFailed("encode")
		return uuid.Nil, "", err
	}
	if err := s.outbox.InsertPaymentWithEvent(ctx, p, event); err != nil {
		s.metrics.CreateFailed("store")
		return uuid.Nil, "", fmt.Errorf("create payment: %w", err)
	}

	s.metrics.PaymentCreated()
	logger.Info("payment created", slog.String("delivery", string(s.delivery)))
	return p.ID, p.Status, nil
}

func (s *Service) publish(ctx context.Context, msg PaymentRequestedMessage) error {
	start := time.Now()
	err := s.publisher.Publish(ctx, msg)
	s.metrics.Published(err, time.Since(start))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, broker.ErrEncode):
		return fmt.Errorf("%w: publish %s: %w", ErrSerialization, EventTypePaymentRequested, err)
	default:
		return fmt.Errorf("%w: publish %s: %w", ErrBrokerUnavailable, EventTypePaymentRequested, err)
	}
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return s.payments.GetPayment(ctx, id)
}

// ListPayments returns all payments newest first. The result is unbounded.
func (s *Service) ListPayments(ctx context.Context) ([]Payment, error) {
	return s.payments.ListPayments(ctx)
}

// TransitionPayment overwrites the status whatever it currently is. No event
// is logged and nothing is published.
func (s *Service) TransitionPayment(ctx context.Context, id uuid.UUID, target Status) error {
	if !target.IsTransitionTarget() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	if err := s.payments.UpdateStatus(ctx, id, target); err != nil {
		return err
	}

	s.metrics.Transitioned(string(target))
	s.logger.Info("payment status overwritten",
		slog.String("payment_id", id.String()),
		slog.String("status", string(target)),
	)
	return nil
}

// DeletePayment removes the payment row. Its events stay in the log.
func (s *Service) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if err := s.payments.DeletePayment(ctx, id); err != nil {
		return err
	}
	s.logger.Info("payment deleted", slog.String("payment_id", id.String()))
	return nil
}

func (s *Service) ListEventsForPayment(ctx context.Context, id uuid.UUID) ([]DomainEvent, error) {
	return s.events.ListEventsByPayment(ctx, id)
}

func (s *Service) ListPaymentsWithUser(ctx context.Context) ([]UserPayment, error) {
	return s.users.ListPaymentsWithUser(ctx)
}
