package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"payments/internal/payment"
)

type stubRow struct{ err error }

func (r stubRow) Scan(...any) error { return r.err }

type stubDB struct {
	tag    pgconn.CommandTag
	err    error
	rowErr error
	execs  []string
}

func (d *stubDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, sql)
	return d.tag, d.err
}

func (d *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, d.err
}

func (d *stubDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return stubRow{err: d.rowErr}
}

func (d *stubDB) Begin(context.Context) (pgx.Tx, error) {
	return nil, d.err
}

func TestStore_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	connErr := errors.New("connection refused")

	t.Run("no rows is not found", func(t *testing.T) {
		s := New(&stubDB{rowErr: pgx.ErrNoRows})
		_, err := s.GetPayment(ctx, id)
		assert.ErrorIs(t, err, payment.ErrNotFound)
		assert.NotErrorIs(t, err, payment.ErrStoreUnavailable)
	})

	t.Run("scan failure is unavailable", func(t *testing.T) {
		s := New(&stubDB{rowErr: connErr})
		_, err := s.GetPayment(ctx, id)
		assert.ErrorIs(t, err, payment.ErrStoreUnavailable)
		assert.ErrorIs(t, err, connErr)
	})

	t.Run("zero rows affected is not found", func(t *testing.T) {
		s := New(&stubDB{tag: pgconn.NewCommandTag("UPDATE 0")})
		assert.ErrorIs(t, s.UpdateStatus(ctx, id, payment.StatusApproved), payment.ErrNotFound)

		s = New(&stubDB{tag: pgconn.NewCommandTag("DELETE 0")})
		assert.ErrorIs(t, s.DeletePayment(ctx, id), payment.ErrNotFound)
	})

	t.Run("one row affected succeeds", func(t *testing.T) {
		db := &stubDB{tag: pgconn.NewCommandTag("UPDATE 1")}
		s := New(db)
		assert.NoError(t, s.UpdateStatus(ctx, id, payment.StatusRejected))
		assert.Equal(t, []string{"UPDATE payments SET status=$1 WHERE id=$2"}, db.execs)
	})

	t.Run("exec failures are unavailable", func(t *testing.T) {
		s := New(&stubDB{err: connErr})
		assert.ErrorIs(t, s.InsertPayment(ctx, payment.Payment{ID: id}), payment.ErrStoreUnavailable)
		assert.ErrorIs(t, s.AppendEvent(ctx, payment.DomainEvent{ID: id}), payment.ErrStoreUnavailable)
		assert.ErrorIs(t, s.UpdateStatus(ctx, id, payment.StatusApproved), payment.ErrStoreUnavailable)

		_, err := s.ListPayments(ctx)
		assert.ErrorIs(t, err, payment.ErrStoreUnavailable)
		_, err = s.ListEventsByPayment(ctx, id)
		assert.ErrorIs(t, err, payment.ErrStoreUnavailable)
		err = s.InsertPaymentWithEvent(ctx, payment.Payment{}, payment.DomainEvent{})
		assert.ErrorIs(t, err, payment.ErrStoreUnavailable)
	})

	t.Run("mark published with nothing to mark", func(t *testing.T) {
		db := &stubDB{}
		assert.NoError(t, PendingQueue{q: db}.MarkPublished(ctx, nil, time.Time{}))
		assert.Empty(t, db.execs)
	})
}
