package services

import (
	"encoding/json"
	"errors"

	"ledger/internal/core"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Payload keys used by the ledger operations.
const (
	KeyID        = "id"
	KeyExpense   = "expense"
	KeyExpenses  = "expenses"
	KeyUpdatedID = "updated_id"
	KeyDeletedID = "deleted_id"
	KeySummary   = "summary"
)

// Result is the envelope every operation answers with. Payload keys are
// merged into the top level when encoded.
type Result struct {
	Status  string
	Code    core.Kind
	Message string
	Payload map[string]any
}

// Success wraps a payload in a success envelope.
func Success(payload map[string]any) Result {
	return Result{Status: StatusSuccess, Payload: payload}
}

// Failure maps an error onto an error envelope.
func Failure(err error) Result {
	return Result{
		Status:  StatusError,
		Code:    core.KindOf(err),
		Message: errorMessage(err),
	}
}

// Outcome picks Success or Failure depending on err.
func Outcome(payload map[string]any, err error) Result {
	if err != nil {
		return Failure(err)
	}
	return Success(payload)
}

// IsError reports whether r is an error envelope.
func (r Result) IsError() bool {
	return r.Status == StatusError
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["status"] = r.Status
	if r.IsError() {
		out["code"] = r.Code
		out["message"] = r.Message
	}
	return json.Marshal(out)
}

func errorMessage(err error) string {
	var nf *core.NotFoundError
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.Is(err, core.ErrReadOnly):
		return "Database is read-only"
	case errors.Is(err, core.ErrNoFieldsSpecified):
		return "No fields to update"
	default:
		return err.Error()
	}
}
