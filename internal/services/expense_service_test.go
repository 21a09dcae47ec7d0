package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"ledger/internal/amqp"
	"ledger/internal/core"
	applog "ledger/internal/log"
)

type fakeStore struct {
	nextID   int64
	expenses map[int64]core.Expense
	failWith error
	closed   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{expenses: make(map[int64]core.Expense)}
}

func (f *fakeStore) Add(_ context.Context, e core.NewExpense) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.nextID++
	f.expenses[f.nextID] = core.Expense{
		ID: f.nextID, Date: e.Date, Amount: e.Amount,
		Category: e.Category, Subcategory: e.Subcategory, Note: e.Note,
	}
	return f.nextID, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (core.Expense, error) {
	e, ok := f.expenses[id]
	if !ok {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	return e, nil
}

func (f *fakeStore) List(_ context.Context, r core.DateRange) ([]core.Expense, error) {
	out := make([]core.Expense, 0)
	for _, e := range f.expenses {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Edit(_ context.Context, id int64, patch core.ExpensePatch) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	e, ok := f.expenses[id]
	if !ok {
		return 0, &core.NotFoundError{ID: id}
	}
	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	f.expenses[id] = e
	return id, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) (int64, error) {
	if _, ok := f.expenses[id]; !ok {
		return 0, &core.NotFoundError{ID: id}
	}
	delete(f.expenses, id)
	return id, nil
}

func (f *fakeStore) Summarize(_ context.Context, _ core.DateRange, _ string) ([]core.CategorySummary, error) {
	return []core.CategorySummary{}, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

type published struct {
	id     int64
	action amqp.Action
}

type fakePublisher struct {
	events   []published
	failWith error
}

func (p *fakePublisher) PublishExpenseEvent(_ context.Context, id int64, action amqp.Action) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.events = append(p.events, published{id, action})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newTestService(store ExpenseStore, pub EventPublisher, buf *bytes.Buffer) *ExpenseService {
	cfg := applog.DefaultConfig()
	cfg.Output = buf
	return NewExpenseService(store, Options{Publisher: pub, Logger: applog.New(cfg)})
}

func ptr[T any](v T) *T { return &v }

func TestExpenseService_AddPublishes(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, &bytes.Buffer{})

	id, err := svc.AddExpense(context.Background(), core.NewExpense{Date: "2024-01-05", Amount: 10, Category: "Food"})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if len(pub.events) != 1 || pub.events[0] != (published{1, amqp.ActionCreated}) {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestExpenseService_AddRejectsEmptyCategory(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, &bytes.Buffer{})

	_, err := svc.AddExpense(context.Background(), core.NewExpense{Date: "2024-01-05", Amount: 10})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(store.expenses) != 0 {
		t.Error("rejected expense reached the store")
	}
	if len(pub.events) != 0 {
		t.Error("rejected expense was published")
	}
}

func TestExpenseService_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{failWith: errors.New("broker down")}
	svc := newTestService(newFakeStore(), pub, &buf)

	if _, err := svc.AddExpense(context.Background(), core.NewExpense{Date: "2024-01-05", Amount: 1, Category: "Food"}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	for _, want := range []string{"Failed to publish expense event", "operation=publish"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q: %s", want, buf.String())
		}
	}
}

func TestExpenseService_LogsThroughRequestLogger(t *testing.T) {
	var own, scoped bytes.Buffer
	svc := newTestService(newFakeStore(), nil, &own)

	reqLogger := applog.New(applog.Config{Output: &scoped}).With(applog.FieldRequestID, "req_42")
	ctx := applog.NewContext(context.Background(), reqLogger)

	if _, err := svc.AddExpense(ctx, core.NewExpense{Date: "2024-01-05", Amount: 1, Category: "Food"}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	out := scoped.String()
	for _, want := range []string{"Expense added", "request_id=req_42", "component=expense"} {
		if !strings.Contains(out, want) {
			t.Errorf("request log missing %q: %s", want, out)
		}
	}
	if own.Len() != 0 {
		t.Errorf("record bypassed the request logger: %s", own.String())
	}
}

func TestExpenseService_Edit(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, &bytes.Buffer{})
	ctx := context.Background()

	id, _ := svc.AddExpense(ctx, core.NewExpense{Date: "2024-01-05", Amount: 10, Category: "Food"})

	t.Run("no fields", func(t *testing.T) {
		_, err := svc.EditExpense(ctx, id, core.ExpensePatch{})
		if !errors.Is(err, core.ErrNoFieldsSpecified) {
			t.Fatalf("err = %v, want ErrNoFieldsSpecified", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.EditExpense(ctx, 99, core.ExpensePatch{Amount: ptr(1.0)})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("amount", func(t *testing.T) {
		got, err := svc.EditExpense(ctx, id, core.ExpensePatch{Amount: ptr(12.5)})
		if err != nil {
			t.Fatalf("EditExpense: %v", err)
		}
		if got != id {
			t.Errorf("id = %d, want %d", got, id)
		}
		if store.expenses[id].Amount != 12.5 {
			t.Errorf("amount = %v, want 12.5", store.expenses[id].Amount)
		}
	})

	last := pub.events[len(pub.events)-1]
	if last.action != amqp.ActionUpdated {
		t.Errorf("last action = %q, want updated", last.action)
	}
	if len(pub.events) != 2 {
		t.Errorf("published %d events, want 2", len(pub.events))
	}
}

func TestExpenseService_Delete(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub, &bytes.Buffer{})
	ctx := context.Background()

	id, _ := svc.AddExpense(ctx, core.NewExpense{Date: "2024-01-05", Amount: 10, Category: "Food"})
	if _, err := svc.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := svc.DeleteExpense(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetExpense(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if pub.events[len(pub.events)-1].action != amqp.ActionDeleted {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestExpenseService_Close(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		service := &ExpenseService{}
		if err := service.Close(); err != nil {
			t.Fatalf("Close should not return error with nil components: %v", err)
		}
	})

	t.Run("closes store", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, nil, &bytes.Buffer{})
		if err := svc.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if !store.closed {
			t.Error("store was not closed")
		}
	})
}

func TestResult_JSON(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   map[string]any
	}{
		{
			name:   "success",
			result: Success(map[string]any{KeyID: 7}),
			want:   map[string]any{"status": "success", "id": float64(7)},
		},
		{
			name:   "not found",
			result: Failure(fmt.Errorf("get expense: %w", &core.NotFoundError{ID: 42})),
			want: map[string]any{
				"status":  "error",
				"code":    "not_found",
				"message": "Expense ID 42 not found",
			},
		},
		{
			name:   "read only",
			result: Failure(fmt.Errorf("add expense: %w: attempt to write a readonly database", core.ErrReadOnly)),
			want: map[string]any{
				"status":  "error",
				"code":    "read_only",
				"message": "Database is read-only",
			},
		},
		{
			name:   "no fields",
			result: Outcome(nil, core.ErrNoFieldsSpecified),
			want: map[string]any{
				"status":  "error",
				"code":    "no_fields_specified",
				"message": "No fields to update",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
