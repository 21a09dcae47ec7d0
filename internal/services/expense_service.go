package services

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	applog "ledger/internal/log"
)

// ExpenseStore is the record store the service runs against.
type ExpenseStore interface {
	Add(ctx context.Context, e core.NewExpense) (int64, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	List(ctx context.Context, r core.DateRange) ([]core.Expense, error)
	Edit(ctx context.Context, id int64, patch core.ExpensePatch) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Summarize(ctx context.Context, r core.DateRange, category string) ([]core.CategorySummary, error)
	Close() error
}

// EventPublisher announces committed changes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, id int64, action amqp.Action) error
	Close() error
}

// ExpenseService validates requests, runs them against the store and
// announces committed mutations.
type ExpenseService struct {
	store          ExpenseStore
	publisher      EventPublisher
	categoriesPath string
	logger         *applog.Logger
}

// Options configures an ExpenseService.
type Options struct {
	// Publisher is optional; without it no change events are sent.
	Publisher      EventPublisher
	CategoriesPath string
	Logger         *applog.Logger
}

func NewExpenseService(store ExpenseStore, opts Options) *ExpenseService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExpenseService{
		store:          store,
		publisher:      opts.Publisher,
		categoriesPath: opts.CategoriesPath,
		logger:         logger.WithComponent(applog.ComponentExpense),
	}
}

// AddExpense records a new expense and returns its id.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.NewExpense) (int64, error) {
	fields := applog.NewFields().
		WithOperation(applog.OpCreate).
		WithExpense(e.Date, e.Amount, e.Category)

	if err := e.Validate(); err != nil {
		s.log(ctx).LogOutcome(ctx, "Expense rejected", fields, err)
		return 0, err
	}

	id, err := s.store.Add(ctx, e)
	if err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to add expense", fields, err)
		return 0, err
	}

	s.log(ctx).LogOutcome(ctx, "Expense added", fields.WithExpenseID(id), nil)
	s.publish(ctx, id, amqp.ActionCreated)
	return id, nil
}

// GetExpense returns one expense.
func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to get expense",
			applog.NewFields().WithOperation(applog.OpRead).WithExpenseID(id), err)
		return core.Expense{}, err
	}
	return e, nil
}

// ListExpenses returns the expenses dated inside r.
func (s *ExpenseService) ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	list, err := s.store.List(ctx, r)
	fields := applog.NewFields().WithOperation(applog.OpList).WithRange(r.Start, r.End)
	if err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to list expenses", fields, err)
		return nil, err
	}
	s.log(ctx).DebugContext(ctx, "Expenses listed", fields.WithCount(len(list)).ToSlice()...)
	return list, nil
}

// EditExpense applies the supplied fields and returns the id.
func (s *ExpenseService) EditExpense(ctx context.Context, id int64, patch core.ExpensePatch) (int64, error) {
	fields := applog.NewFields().WithOperation(applog.OpUpdate).WithExpenseID(id)

	if err := patch.Validate(); err != nil {
		s.log(ctx).LogOutcome(ctx, "Edit rejected", fields, err)
		return 0, err
	}

	if _, err := s.store.Edit(ctx, id, patch); err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to edit expense", fields, err)
		return 0, err
	}

	s.log(ctx).LogOutcome(ctx, "Expense edited", fields, nil)
	s.publish(ctx, id, amqp.ActionUpdated)
	return id, nil
}

// DeleteExpense removes an expense and returns the id.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	fields := applog.NewFields().WithOperation(applog.OpDelete).WithExpenseID(id)

	if _, err := s.store.Delete(ctx, id); err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to delete expense", fields, err)
		return 0, err
	}

	s.log(ctx).LogOutcome(ctx, "Expense deleted", fields, nil)
	s.publish(ctx, id, amqp.ActionDeleted)
	return id, nil
}

// Summarize groups the expenses dated inside r by category. An empty
// category means every category.
func (s *ExpenseService) Summarize(ctx context.Context, r core.DateRange, category string) ([]core.CategorySummary, error) {
	sums, err := s.store.Summarize(ctx, r, category)
	fields := applog.NewFields().WithOperation(applog.OpSummarize).WithRange(r.Start, r.End)
	if category != "" {
		fields[applog.FieldCategory] = category
	}
	if err != nil {
		s.log(ctx).LogOutcome(ctx, "Failed to summarize expenses", fields, err)
		return nil, err
	}
	s.log(ctx).DebugContext(ctx, "Expenses summarized", fields.WithCount(len(sums)).ToSlice()...)
	return sums, nil
}

// Categories returns the category list document.
func (s *ExpenseService) Categories() ([]byte, error) {
	return core.LoadCategoryDocument(s.categoriesPath)
}

// log carries request attributes from ctx onto the service's records.
func (s *ExpenseService) log(ctx context.Context) *applog.Logger {
	return s.logger.ForContext(ctx)
}

// publish is best effort: the change is already committed.
func (s *ExpenseService) publish(ctx context.Context, id int64, action amqp.Action) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, id, action); err != nil {
		s.log(ctx).ErrorContext(ctx, "Failed to publish expense event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldExpenseID, id,
			"action", action,
			applog.FieldError, err)
	}
}

// Close closes both storage and AMQP connections
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}

	return nil
}
