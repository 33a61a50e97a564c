package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// IsTransitionTarget reports whether s can be written by TransitionPayment.
// Pending is only ever set at creation.
func (s Status) IsTransitionTarget() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

type Payment struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPayment is a payment joined with the owning user's profile. The profile
// fields are nil when the users table has no matching row.
type UserPayment struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  *string   `json:"user_name"`
	Email     *string   `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const EventTypePaymentRequested = "PaymentRequested"

// DomainEvent is a row of the append-only event log. PaymentID is extracted
// from Data at write time and is what events are looked up by.
type DomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	PaymentID uuid.UUID `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentRequested is the payload stored in the event log.
type PaymentRequested struct {
	PaymentID uuid.UUID `json:"PaymentId"`
	UserID    uuid.UUID `json:"UserId"`
	Items     []string  `json:"Items"`
}

// PaymentRequestedMessage is the body published to the broker.
type PaymentRequestedMessage struct {
	PaymentID uuid.UUID `json:"PaymentId"`
	UserID    uuid.UUID `json:"UserId"`
	Items     []string  `json:"Items"`
	Timestamp time.Time `json:"Timestamp"`
}

func newPaymentRequestedEvent(p Payment, items []string) (DomainEvent, error) {
	data, err := json.Marshal(PaymentRequested{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Items:     items,
	})
	if err != nil {
		return DomainEvent{}, fmt.Errorf("%w: encode %s: %w", ErrSerialization, EventTypePaymentRequested, err)
	}

	return DomainEvent{
		ID:        uuid.New(),
		Type:      EventTypePaymentRequested,
		Data:      string(data),
		PaymentID: p.ID,
		CreatedAt: p.CreatedAt,
	}, nil
}

// MessageFromEvent rebuilds the broker message for a logged PaymentRequested
// event, using the event's timestamp.
func MessageFromEvent(e DomainEvent) (PaymentRequestedMessage, error) {
	if e.Type != EventTypePaymentRequested {
		return PaymentRequestedMessage{}, fmt.Errorf("%w: unexpected event type %q", ErrSerialization, e.Type)
	}

	var payload PaymentRequested
	if err := json.Unmarshal([]byte(e.Data), &payload); err != nil {
		return PaymentRequestedMessage{}, fmt.Errorf("%w: decode event %s: %w", ErrSerialization, e.ID, err)
	}

	return PaymentRequestedMessage{
		PaymentID: payload.PaymentID,
		UserID:    payload.UserID,
		Items:     payload.Items,
		Timestamp: e.CreatedAt,
	}, nil
}

// Key partitions broker messages by payment.
func (m PaymentRequestedMessage) Key() string {
	return m.PaymentID.String()
}
