package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments/internal/broker"
	"payments/internal/logging"
	"payments/internal/metrics"
	"payments/internal/payment"
	"payments/internal/payment/paymenttest"
	"payments/internal/pkg/clock"
)

type fixture struct {
	store     *paymenttest.Store
	publisher *paymenttest.Publisher
	clock     *clock.MockClock
	svc       *payment.Service
}

func newFixture(delivery payment.Delivery) *fixture {
	f := &fixture{
		store:     paymenttest.NewStore(),
		publisher: &paymenttest.Publisher{},
		clock:     clock.NewMockClock(time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)),
	}
	f.svc = payment.NewService(payment.Deps{
		Payments:  f.store,
		Events:    f.store,
		Outbox:    f.store,
		Users:     f.store,
		Publisher: f.publisher,
		Clock:     f.clock,
		Delivery:  delivery,
		Metrics:   metrics.New(),
		Logger:    logging.Discard(),
	})
	return f
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()
	userID := uuid.New()
	items := []string{"sku-1", "sku-2"}

	id, status, err := f.svc.CreatePayment(ctx, userID, items)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, payment.StatusPending, status)

	p, err := f.svc.GetPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, f.clock.Now(), p.CreatedAt)

	events, err := f.svc.ListEventsForPayment(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, payment.EventTypePaymentRequested, e.Type)
	assert.NotEqual(t, id, e.ID)
	assert.Equal(t, p.CreatedAt, e.CreatedAt)

	var data payment.PaymentRequested
	require.NoError(t, json.Unmarshal([]byte(e.Data), &data))
	assert.Equal(t, id, data.PaymentID)
	assert.Equal(t, userID, data.UserID)
	assert.Equal(t, items, data.Items)
	assert.Contains(t, e.Data, `"PaymentId":"`+id.String()+`"`)

	payloads := f.publisher.Payloads()
	require.Len(t, payloads, 1)
	msg, ok := payloads[0].(payment.PaymentRequestedMessage)
	require.True(t, ok)
	assert.Equal(t, payment.PaymentRequestedMessage{
		PaymentID: id,
		UserID:    userID,
		Items:     items,
		Timestamp: p.CreatedAt,
	}, msg)
}

func TestCreatePayment_MessageShape(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)

	_, _, err := f.svc.CreatePayment(context.Background(), uuid.New(), []string{"sku-1"})
	require.NoError(t, err)

	raw, err := json.Marshal(f.publisher.Payloads()[0])
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"PaymentId", "UserId", "Items", "Timestamp"}, keys(fields))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCreatePayment_Validation(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	_, _, err := f.svc.CreatePayment(ctx, uuid.Nil, []string{"sku-1"})
	assert.ErrorIs(t, err, payment.ErrInvalidRequest)

	_, _, err = f.svc.CreatePayment(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, payment.ErrInvalidRequest)

	list, err := f.svc.ListPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, status, err := f.svc.CreatePayment(ctx, uuid.New(), []string{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, status)
}

// The three writes are not atomic: a failure leaves the earlier writes.
func TestCreatePayment_PartialFailures(t *testing.T) {
	ctx := context.Background()
	storeDown := errors.New("connection refused")

	t.Run("payment insert fails: nothing written", func(t *testing.T) {
		f := newFixture(payment.DeliveryDirect)
		f.store.InsertErr = storeDown

		_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		assert.ErrorIs(t, err, storeDown)

		list, _ := f.svc.ListPayments(ctx)
		assert.Empty(t, list)
		assert.Empty(t, f.store.Events())
		assert.Empty(t, f.publisher.Payloads())
	})

	t.Run("event append fails: payment left without event or message", func(t *testing.T) {
		f := newFixture(payment.DeliveryDirect)
		f.store.AppendErr = storeDown

		_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		assert.ErrorIs(t, err, storeDown)

		list, _ := f.svc.ListPayments(ctx)
		require.Len(t, list, 1)
		assert.Equal(t, payment.StatusPending, list[0].Status)
		assert.Empty(t, f.store.Events())
		assert.Empty(t, f.publisher.Payloads())
	})

	t.Run("broker unreachable: payment and event persist", func(t *testing.T) {
		f := newFixture(payment.DeliveryDirect)
		f.publisher.Err = fmt.Errorf("%w: dial: connection refused", broker.ErrUnavailable)

		_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		assert.ErrorIs(t, err, payment.ErrBrokerUnavailable)
		assert.NotErrorIs(t, err, payment.ErrNotFound)

		list, _ := f.svc.ListPayments(ctx)
		require.Len(t, list, 1)

		events, err := f.svc.ListEventsForPayment(ctx, list[0].ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, payment.EventTypePaymentRequested, events[0].Type)
	})

	t.Run("publisher cannot encode: serialization failure", func(t *testing.T) {
		f := newFixture(payment.DeliveryDirect)
		f.publisher.Err = fmt.Errorf("%w: unsupported type", broker.ErrEncode)

		_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		assert.ErrorIs(t, err, payment.ErrSerialization)
		assert.NotErrorIs(t, err, payment.ErrBrokerUnavailable)
	})
}

func TestCreatePayment_OutboxDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("writes payment and event, publishes nothing", func(t *testing.T) {
		f := newFixture(payment.DeliveryOutbox)
		f.publisher.Err = errors.New("must not be called")

		id, status, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, status)

		_, err = f.svc.GetPayment(ctx, id)
		require.NoError(t, err)
		events, err := f.svc.ListEventsForPayment(ctx, id)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("event write failure leaves no payment", func(t *testing.T) {
		f := newFixture(payment.DeliveryOutbox)
		f.store.AppendErr = payment.ErrStoreUnavailable

		_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
		assert.ErrorIs(t, err, payment.ErrStoreUnavailable)

		list, _ := f.svc.ListPayments(ctx)
		assert.Empty(t, list)
	})
}

func TestCreatePayment_Concurrent(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.svc.ListPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
	assert.Len(t, f.store.Events(), 20)
	assert.Len(t, f.publisher.Payloads(), 20)
}

func TestTransitionPayment(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	id, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
	require.NoError(t, err)

	// Transitions are unguarded: terminal states can be left again.
	steps := []payment.Status{
		payment.StatusCanceled,
		payment.StatusApproved,
		payment.StatusApproved,
		payment.StatusRejected,
	}
	for _, target := range steps {
		require.NoError(t, f.svc.TransitionPayment(ctx, id, target))
		p, err := f.svc.GetPayment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, target, p.Status)
	}

	events, err := f.svc.ListEventsForPayment(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 1, "transitions must not log events")
	assert.Len(t, f.publisher.Payloads(), 1, "transitions must not publish")
}

func TestTransitionPayment_Errors(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.TransitionPayment(ctx, uuid.New(), payment.StatusApproved), payment.ErrNotFound)

	id, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.TransitionPayment(ctx, id, payment.StatusPending), payment.ErrInvalidStatus)
	assert.ErrorIs(t, f.svc.TransitionPayment(ctx, id, "refunded"), payment.ErrInvalidStatus)
}

func TestDeletePayment_KeepsEvents(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	id, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePayment(ctx, id))

	_, err = f.svc.GetPayment(ctx, id)
	assert.ErrorIs(t, err, payment.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeletePayment(ctx, id), payment.ErrNotFound)

	events, err := f.svc.ListEventsForPayment(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListEventsForPayment_IsolatesPayments(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	a, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-a"})
	require.NoError(t, err)
	b, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{"sku-b"})
	require.NoError(t, err)

	eventsB, err := f.svc.ListEventsForPayment(ctx, b)
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
	assert.NotContains(t, eventsB[0].Data, a.String())
	assert.Equal(t, b, eventsB[0].PaymentID)
}

func TestListPayments_NewestFirst(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	first, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, _, err := f.svc.CreatePayment(ctx, uuid.New(), []string{})
	require.NoError(t, err)

	list, err := f.svc.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
}

func TestListPaymentsWithUser(t *testing.T) {
	f := newFixture(payment.DeliveryDirect)
	ctx := context.Background()

	known := uuid.New()
	f.store.AddUser(known, paymenttest.User{Name: "Ada", Email: "ada@example.com"})

	_, _, err := f.svc.CreatePayment(ctx, known, []string{})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, _, err = f.svc.CreatePayment(ctx, uuid.New(), []string{})
	require.NoError(t, err)

	list, err := f.svc.ListPaymentsWithUser(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].UserName)
	require.NotNil(t, list[1].UserName)
	assert.Equal(t, "Ada", *list[1].UserName)
	assert.Equal(t, "ada@example.com", *list[1].Email)
}
