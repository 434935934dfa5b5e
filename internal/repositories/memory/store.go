// Package memory implements the repository registry in process memory. Every operation, and
// every unit of work as a whole, runs under one store mutex; a failed unit of work restores the
// state captured when it started.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/pagination"
	"github.com/voltmart/storefront/internal/repositories"
)

// Store is an in-memory repositories.Registry.
type Store struct {
	mu     sync.Mutex
	state  state
	now    func() time.Time
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

type state struct {
	orders    map[string]domain.Order
	payments  map[string]string
	products  map[string]domain.Product
	users     map[string]domain.User
	codes     map[string]string
	ledger    map[string]domain.CoinTransaction
	referrals map[string]domain.Referral
	returns   map[string]domain.Return
	alerts    map[string]domain.InventoryAlert
}

func (s state) clone() state {
	return state{
		orders:    maps.Clone(s.orders),
		payments:  maps.Clone(s.payments),
		products:  maps.Clone(s.products),
		users:     maps.Clone(s.users),
		codes:     maps.Clone(s.codes),
		ledger:    maps.Clone(s.ledger),
		referrals: maps.Clone(s.referrals),
		returns:   maps.Clone(s.returns),
		alerts:    maps.Clone(s.alerts),
	}
}

// Option customises the store.
type Option func(*Store)

// WithClock overrides the clock used for update timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: state{
			orders:    map[string]domain.Order{},
			payments:  map[string]string{},
			products:  map[string]domain.Product{},
			users:     map[string]domain.User{},
			codes:     map[string]string{},
			ledger:    map[string]domain.CoinTransaction{},
			referrals: map[string]domain.Referral{},
			returns:   map[string]domain.Return{},
			alerts:    map[string]domain.InventoryAlert{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.health, _ = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	}, repositories.WithDependencyClock(s.now))
	return s
}

type txKey struct{ store *Store }

func (s *Store) inTx(ctx context.Context) bool {
	return ctx != nil && ctx.Value(txKey{store: s}) != nil
}

// do runs fn with exclusive access to the state. Inside a unit of work the lock is already held.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s.inTx(ctx) {
		return fn(&s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is nil")
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{store: s}, true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository                   { return orderRepo{s} }
func (s *Store) Products() repositories.ProductRepository               { return productRepo{s} }
func (s *Store) Users() repositories.UserRepository                     { return userRepo{s} }
func (s *Store) Ledger() repositories.CoinLedgerRepository              { return ledgerRepo{s} }
func (s *Store) Referrals() repositories.ReferralRepository             { return referralRepo{s} }
func (s *Store) Returns() repositories.ReturnRepository                 { return returnRepo{s} }
func (s *Store) InventoryAlerts() repositories.InventoryAlertRepository { return alertRepo{s} }
func (s *Store) Health() repositories.HealthRepository                  { return s.health }

// Error implements repositories.RepositoryError.
type Error struct {
	Op       string
	Message  string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return e.Op + ": " + e.Message }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{Op: op, Message: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{Op: op, Message: fmt.Sprintf(format, args...), conflict: true}
}

// newestFirst sorts items by creation time then ID, both descending, and cuts one page after
// the cursor in pager.
func newestFirst[T any](items []T, pager domain.Pagination, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		switch {
		case aid > bid:
			return -1
		case aid < bid:
			return 1
		}
		return 0
	})

	size := pager.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.DefaultMaxPageSize {
		size = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	start := 0
	if !cursor.IsZero() {
		start = len(items)
		for i, item := range items {
			if cursor.After(key(item)) {
				start = i
				break
			}
		}
	}

	items = items[start:]
	if len(items) <= size {
		return domain.CursorPage[T]{Items: items}, nil
	}
	items = items[:size]
	at, id := key(items[size-1])
	return domain.CursorPage[T]{Items: items, NextPageToken: pagination.EncodeToken(pagination.Cursor{CreatedAt: at, ID: id})}, nil
}

// DeleteProduct removes a product from the catalog. Orders keep their snapshots and later
// observe a dangling product reference.
func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	return s.do(ctx, func(st *state) error {
		delete(st.products, productID)
		return nil
	})
}
