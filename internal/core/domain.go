package core

import "fmt"

type (
	// Expense is a stored ledger record.
	Expense struct {
		ID          int64   `json:"id"`
		Date        string  `json:"date"` // YYYY-MM-DD, compared as plain text
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
		Note        string  `json:"note"`
	}

	// NewExpense carries the fields accepted when a record is created.
	NewExpense struct {
		Date        string
		Amount      float64
		Category    string
		Subcategory string
		Note        string
	}

	// ExpensePatch lists the fields an edit may change. A nil field is left
	// untouched.
	ExpensePatch struct {
		Date        *string
		Amount      *float64
		Category    *string
		Subcategory *string
		Note        *string
	}

	// PatchField is one supplied column and its new value.
	PatchField struct {
		Column string
		Value  any
	}

	// CategorySummary aggregates the records of one category.
	CategorySummary struct {
		Category    string  `json:"category"`
		TotalAmount float64 `json:"total_amount"`
		Count       int64   `json:"count"`
	}

	// DateRange is an inclusive range of YYYY-MM-DD strings.
	DateRange struct {
		Start string
		End   string
	}
)

// Column names the store accepts in an update.
const (
	ColumnDate        = "date"
	ColumnAmount      = "amount"
	ColumnCategory    = "category"
	ColumnSubcategory = "subcategory"
	ColumnNote        = "note"
)

// Validate reports whether the record can be created.
func (e NewExpense) Validate() error {
	if e.Category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	return nil
}

// Fields returns the supplied fields in column order.
func (p ExpensePatch) Fields() []PatchField {
	var fields []PatchField
	if p.Date != nil {
		fields = append(fields, PatchField{Column: ColumnDate, Value: *p.Date})
	}
	if p.Amount != nil {
		fields = append(fields, PatchField{Column: ColumnAmount, Value: *p.Amount})
	}
	if p.Category != nil {
		fields = append(fields, PatchField{Column: ColumnCategory, Value: *p.Category})
	}
	if p.Subcategory != nil {
		fields = append(fields, PatchField{Column: ColumnSubcategory, Value: *p.Subcategory})
	}
	if p.Note != nil {
		fields = append(fields, PatchField{Column: ColumnNote, Value: *p.Note})
	}
	return fields
}

// IsEmpty returns true when no field was supplied.
func (p ExpensePatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Validate rejects an empty patch and an explicit empty category.
func (p ExpensePatch) Validate() error {
	if p.IsEmpty() {
		return ErrNoFieldsSpecified
	}
	if p.Category != nil && *p.Category == "" {
		return fmt.Errorf("%w: category cannot be empty", ErrValidation)
	}
	return nil
}

// Contains reports whether date falls inside the range.
func (r DateRange) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}
