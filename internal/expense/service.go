// Package expense implements expense record lifecycle operations. Every
// mutation keeps the association graph in step: additions contribute weight,
// edits move the old contribution to the new values, deletions withdraw it.
package expense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/minoapp/minosync/internal/domain"
	"github.com/minoapp/minosync/internal/extraction"
	"github.com/minoapp/minosync/internal/graph"
	"github.com/minoapp/minosync/internal/store"
)

// Validation failures for manual entry and edits.
var (
	ErrNoPlace        = errors.New("expense: place is required")
	ErrNegativeAmount = errors.New("expense: amount cannot be negative")
	ErrBadDate        = errors.New("expense: invalid transaction date")
)

// Service applies expense mutations through the store with graph upkeep.
type Service struct {
	store store.Store
	log   zerolog.Logger
}

// NewService creates an expense service over the given store.
func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// validate checks the fields a record must carry before it can be stored.
func validate(e *domain.Expense) error {
	if e.Place == "" {
		return ErrNoPlace
	}
	if e.Amount < 0 {
		return ErrNegativeAmount
	}
	if e.TransactionDate != "" {
		if _, err := time.Parse(domain.DateTimeLayout, e.TransactionDate); err != nil {
			return fmt.Errorf("%w: %q", ErrBadDate, e.TransactionDate)
		}
	}
	return nil
}

// normalize fills derived and defaulted fields in place.
func normalize(e *domain.Expense) {
	e.NormalizedPlace = extraction.NormalizeMerchant(e.Place)
	if e.Category == "" {
		e.Category = domain.DefaultCategory
	}
	if e.Type == "" {
		e.Type = domain.TypeExpense
	}
}

// Add validates, normalizes and persists a new expense, then records its
// graph contribution. Both writes share one transaction.
func (s *Service) Add(ctx context.Context, e *domain.Expense) (int64, error) {
	if err := validate(e); err != nil {
		return 0, err
	}
	normalize(e)

	var id int64
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		if id, err = tx.AddExpense(ctx, e); err != nil {
			return err
		}
		return graph.AddContribution(ctx, tx, e)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update edits an existing expense. The stored PRE-edit values are used to
// withdraw the old graph contribution before the POST-edit values are added;
// the two graph paths stay independent rather than computing a net delta.
func (s *Service) Update(ctx context.Context, e *domain.Expense) error {
	if err := validate(e); err != nil {
		return err
	}
	normalize(e)

	return s.store.WithTx(ctx, func(tx store.Store) error {
		old, err := tx.GetExpense(ctx, e.ID)
		if err != nil {
			return err
		}
		if err := graph.RemoveContribution(ctx, tx, old); err != nil {
			return err
		}
		if err := tx.UpdateExpense(ctx, e); err != nil {
			return err
		}
		return graph.AddContribution(ctx, tx, e)
	})
}

// Delete removes an expense and withdraws its graph contribution, using the
// row as it was stored.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		old, err := tx.DeleteExpense(ctx, id)
		if err != nil {
			return err
		}
		return graph.RemoveContribution(ctx, tx, old)
	})
}

// RememberRule stores a keyword→category rule. Keywords are unique; teaching
// an existing keyword replaces its category.
func (s *Service) RememberRule(ctx context.Context, keyword, category string) error {
	if keyword == "" || category == "" {
		return errors.New("expense: rule keyword and category are required")
	}
	return s.store.UpsertRule(ctx, keyword, category)
}
