package payment

import (
	"context"

	"github.com/google/uuid"
)

// PaymentStore owns the payments table.
type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	// ListPayments returns every payment, newest first.
	ListPayments(ctx context.Context) ([]Payment, error)
	// UpdateStatus overwrites the status and returns ErrNotFound when no row matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
}

// EventLog is the append-only events table.
type EventLog interface {
	AppendEvent(ctx context.Context, e DomainEvent) error
	// ListEventsByPayment returns events referencing the payment, newest first.
	ListEventsByPayment(ctx context.Context, paymentID uuid.UUID) ([]DomainEvent, error)
}

// OutboxWriter writes a payment and its event in one transaction.
type OutboxWriter interface {
	InsertPaymentWithEvent(ctx context.Context, p Payment, e DomainEvent) error
}

// UserDirectory joins payments with the externally owned users table.
type UserDirectory interface {
	ListPaymentsWithUser(ctx context.Context) ([]UserPayment, error)
}

// Publisher hands a payload to the broker.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}
