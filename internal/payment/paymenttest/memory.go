// Package paymenttest provides in-memory collaborators for payment.Service.
package paymenttest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"payments/internal/payment"
)

// User is a row of the fake users table.
type User struct {
	Name  string
	Email string
}

// Store is an in-memory payments table, events table and users table. The
// *Err fields make the matching operation fail.
type Store struct {
	mu       sync.Mutex
	payments map[uuid.UUID]payment.Payment
	events   []payment.DomainEvent
	users    map[uuid.UUID]User

	InsertErr error
	AppendErr error
	QueryErr  error
}

func NewStore() *Store {
	return &Store{
		payments: map[uuid.UUID]payment.Payment{},
		users:    map[uuid.UUID]User{},
	}
}

func (s *Store) AddUser(id uuid.UUID, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = u
}

func (s *Store) InsertPayment(_ context.Context, p payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return payment.Payment{}, s.QueryErr
	}
	p, ok := s.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(_ context.Context) ([]payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	list := make([]payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		list = append(list, p)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status payment.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return payment.ErrNotFound
	}
	p.Status = status
	s.payments[id] = p
	return nil
}

func (s *Store) DeletePayment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[id]; !ok {
		return payment.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) AppendEvent(_ context.Context, e payment.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *Store) ListEventsByPayment(_ context.Context, paymentID uuid.UUID) ([]payment.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	list := []payment.DomainEvent{}
	for _, e := range s.events {
		if e.PaymentID == paymentID {
			list = append(list, e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// InsertPaymentWithEvent applies both writes or neither.
func (s *Store) InsertPaymentWithEvent(_ context.Context, p payment.Payment, e payment.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return s.InsertErr
	}
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.payments[p.ID] = p
	s.events = append(s.events, e)
	return nil
}

func (s *Store) ListPaymentsWithUser(ctx context.Context) ([]payment.UserPayment, error) {
	payments, err := s.ListPayments(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]payment.UserPayment, 0, len(payments))
	for _, p := range payments {
		up := payment.UserPayment{ID: p.ID, UserID: p.UserID, Status: p.Status, CreatedAt: p.CreatedAt}
		if u, ok := s.users[p.UserID]; ok {
			name, email := u.Name, u.Email
			up.UserName, up.Email = &name, &email
		}
		list = append(list, up)
	}
	return list, nil
}

// Events returns every logged event, in append order.
func (s *Store) Events() []payment.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payment.DomainEvent(nil), s.events...)
}

// Publisher records published payloads. Err makes every publish fail.
type Publisher struct {
	mu       sync.Mutex
	payloads []any

	Err error
}

func (p *Publisher) Publish(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *Publisher) Payloads() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.payloads...)
}
