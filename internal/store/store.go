package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"payments/internal/payment"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements the payment store, the event log and the outbox on
// PostgreSQL. Each method outside InsertPaymentWithEvent and InTx is a single
// independent statement.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, payment.ErrStoreUnavailable, err)
}

const insertPaymentSQL = "INSERT INTO payments (id, user_id, status, created_at) VALUES ($1, $2, $3, $4)"

func (s *Store) InsertPayment(ctx context.Context, p payment.Payment) error {
	if _, err := s.db.Exec(ctx, insertPaymentSQL, p.ID, p.UserID, p.Status, p.CreatedAt); err != nil {
		return unavailable("insert payment", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (payment.Payment, error) {
	var p payment.Payment
	err := s.db.QueryRow(
		ctx,
		"SELECT id, user_id, status, created_at FROM payments WHERE id=$1",
		id,
	).Scan(&p.ID, &p.UserID, &p.Status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Payment{}, payment.ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, unavailable("get payment", err)
	}
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context) ([]payment.Payment, error) {
	rows, err := s.db.Query(ctx, "SELECT id, user_id, status, created_at FROM payments ORDER BY created_at DESC")
	if err != nil {
		return nil, unavailable("list payments", err)
	}
	defer rows.Close()

	payments := []payment.Payment{}
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Status, &p.CreatedAt); err != nil {
			return nil, unavailable("scan payment", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list payments", err)
	}
	return payments, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status payment.Status) error {
	result, err := s.db.Exec(ctx, "UPDATE payments SET status=$1 WHERE id=$2", status, id)
	if err != nil {
		return unavailable("update payment status", err)
	}
	if result.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, "DELETE FROM payments WHERE id=$1", id)
	if err != nil {
		return unavailable("delete payment", err)
	}
	if result.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

const insertEventSQL = "INSERT INTO events (id, type, data, payment_id, created_at) VALUES ($1, $2, $3, $4, $5)"

func (s *Store) AppendEvent(ctx context.Context, e payment.DomainEvent) error {
	if _, err := s.db.Exec(ctx, insertEventSQL, e.ID, e.Type, e.Data, e.PaymentID, e.CreatedAt); err != nil {
		return unavailable("append event", err)
	}
	return nil
}

func (s *Store) ListEventsByPayment(ctx context.Context, paymentID uuid.UUID) ([]payment.DomainEvent, error) {
	rows, err := s.db.Query(
		ctx,
		"SELECT id, type, data, payment_id, created_at FROM events WHERE payment_id=$1 ORDER BY created_at DESC",
		paymentID,
	)
	if err != nil {
		return nil, unavailable("list events", err)
	}
	return collectEvents(rows)
}

// InsertPaymentWithEvent writes the payment and its event atomically.
func (s *Store) InsertPaymentWithEvent(ctx context.Context, p payment.Payment, e payment.DomainEvent) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertPaymentSQL, p.ID, p.UserID, p.Status, p.CreatedAt); err != nil {
		return unavailable("insert payment", err)
	}
	if _, err := tx.Exec(ctx, insertEventSQL, e.ID, e.Type, e.Data, e.PaymentID, e.CreatedAt); err != nil {
		return unavailable("append event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}

// PendingQueue is the view of unpublished events inside a relay transaction.
type PendingQueue struct {
	q querier
}

// Pending locks up to limit unpublished events, oldest first. Rows locked by
// another relay are skipped.
func (pq PendingQueue) Pending(ctx context.Context, limit int) ([]payment.DomainEvent, error) {
	rows, err := pq.q.Query(
		ctx,
		"SELECT id, type, data, payment_id, created_at FROM events WHERE published_at IS NULL ORDER BY created_at LIMIT $1 FOR UPDATE SKIP LOCKED",
		limit,
	)
	if err != nil {
		return nil, unavailable("query pending events", err)
	}
	return collectEvents(rows)
}

func (pq PendingQueue) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := pq.q.Exec(ctx, "UPDATE events SET published_at=$1 WHERE id = ANY($2)", at, ids); err != nil {
		return unavailable("mark events published", err)
	}
	return nil
}

// InTx runs fn in a transaction and commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(PendingQueue) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(PendingQueue{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}

func collectEvents(rows pgx.Rows) ([]payment.DomainEvent, error) {
	defer rows.Close()

	events := []payment.DomainEvent{}
	for rows.Next() {
		var (
			e         payment.DomainEvent
			paymentID *uuid.UUID
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Data, &paymentID, &e.CreatedAt); err != nil {
			return nil, unavailable("scan event", err)
		}
		if paymentID != nil {
			e.PaymentID = *paymentID
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read events", err)
	}
	return events, nil
}
