package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

const (
	insertExpenseSQL = `INSERT INTO expenses (date, amount, category, subcategory, note)
		VALUES (?, ?, ?, ?, ?)`

	selectExpenseSQL = `SELECT id, date, amount, category, subcategory, note
		FROM expenses WHERE id = ?`

	listExpensesSQL = `SELECT id, date, amount, category, subcategory, note
		FROM expenses
		WHERE date BETWEEN ? AND ?
		ORDER BY date DESC, id DESC`

	deleteExpenseSQL = `DELETE FROM expenses WHERE id = ?`

	// An empty category argument disables the category filter.
	summarizeSQL = `SELECT category, SUM(amount) AS total_amount, COUNT(*) AS count
		FROM expenses
		WHERE date BETWEEN ? AND ?
		  AND (? = '' OR category = ?)
		GROUP BY category
		ORDER BY total_amount DESC, category ASC`
)

// updatableColumns is the closed set of columns an edit may touch.
var updatableColumns = map[string]bool{
	core.ColumnDate:        true,
	core.ColumnAmount:      true,
	core.ColumnCategory:    true,
	core.ColumnSubcategory: true,
	core.ColumnNote:        true,
}

// Add inserts a record and returns its newly assigned id.
func (s *Store) Add(ctx context.Context, e core.NewExpense) (int64, error) {
	var id int64
	err := s.withTx(ctx, "add expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insertExpenseSQL,
			e.Date, e.Amount, e.Category, e.Subcategory, e.Note)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "Expense inserted",
		applog.FieldExpenseID, id,
		applog.FieldDate, e.Date,
		applog.FieldAmount, e.Amount,
		applog.FieldCategory, e.Category)

	return id, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (core.Expense, error) {
	var e core.Expense
	err := s.withTx(ctx, "get expense", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectExpenseSQL, id)
		if err := row.Scan(&e.ID, &e.Date, &e.Amount, &e.Category, &e.Subcategory, &e.Note); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &core.NotFoundError{ID: id}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// List returns the records dated inside r, newest date first and, within a
// date, most recently inserted first.
func (s *Store) List(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	expenses := make([]core.Expense, 0)
	err := s.withTx(ctx, "list expenses", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listExpensesSQL, r.Start, r.End)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e core.Expense
			if err := rows.Scan(&e.ID, &e.Date, &e.Amount, &e.Category, &e.Subcategory, &e.Note); err != nil {
				return err
			}
			expenses = append(expenses, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// Edit updates the supplied fields of a record in one statement and returns
// its id.
func (s *Store) Edit(ctx context.Context, id int64, patch core.ExpensePatch) (int64, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return 0, core.ErrNoFieldsSpecified
	}

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		if !updatableColumns[f.Column] {
			return 0, fmt.Errorf("%w: unknown column %q", core.ErrValidation, f.Column)
		}
		assignments = append(assignments, f.Column+" = ?")
		args = append(args, f.Value)
	}
	args = append(args, id)
	query := "UPDATE expenses SET " + strings.Join(assignments, ", ") + " WHERE id = ?"

	err := s.withTx(ctx, "edit expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{ID: id}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "Expense updated", applog.FieldExpenseID, id, "fields", len(fields))
	return id, nil
}

// Delete removes a record and returns its id.
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	err := s.withTx(ctx, "delete expense", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteExpenseSQL, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{ID: id}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "Expense deleted", applog.FieldExpenseID, id)
	return id, nil
}

// Summarize totals the records dated inside r per category, largest total
// first. A non-empty category restricts the result to that exact category.
func (s *Store) Summarize(ctx context.Context, r core.DateRange, category string) ([]core.CategorySummary, error) {
	summaries := make([]core.CategorySummary, 0)
	err := s.withTx(ctx, "summarize expenses", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, summarizeSQL, r.Start, r.End, category, category)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var cs core.CategorySummary
			if err := rows.Scan(&cs.Category, &cs.TotalAmount, &cs.Count); err != nil {
				return err
			}
			summaries = append(summaries, cs)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
