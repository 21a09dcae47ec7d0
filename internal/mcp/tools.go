package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type tool struct {
	info MCPToolInfo
	call func(ctx context.Context, args json.RawMessage) services.Result
}

const (
	dateProp     = `{"type": "string", "description": "Date in YYYY-MM-DD format"}`
	amountProp   = `{"type": "number"}`
	categoryProp = `{"type": "string"}`
	textProp     = `{"type": "string"}`
	idProp       = `{"type": "integer"}`
)

func (s *Server) buildTools() map[string]tool {
	list := []tool{
		{
			info: MCPToolInfo{
				Name:        "add_expense",
				Description: "Add a new expense entry to the database.",
				InputSchema: schema(map[string]string{
					"date": dateProp, "amount": amountProp, "category": categoryProp,
					"subcategory": textProp, "note": textProp,
				}, "date", "amount", "category"),
			},
			call: s.addExpense,
		},
		{
			info: MCPToolInfo{
				Name:        "get_expense",
				Description: "Get a single expense by ID.",
				InputSchema: schema(map[string]string{"expense_id": idProp}, "expense_id"),
			},
			call: s.getExpense,
		},
		{
			info: MCPToolInfo{
				Name:        "list_expenses",
				Description: "List expense entries within an inclusive date range.",
				InputSchema: schema(map[string]string{"start_date": dateProp, "end_date": dateProp},
					"start_date", "end_date"),
			},
			call: s.listExpenses,
		},
		{
			info: MCPToolInfo{
				Name:        "edit_expense",
				Description: "Edit an existing expense. Only the supplied fields are changed.",
				InputSchema: schema(map[string]string{
					"expense_id": idProp, "date": dateProp, "amount": amountProp,
					"category": categoryProp, "subcategory": textProp, "note": textProp,
				}, "expense_id"),
			},
			call: s.editExpense,
		},
		{
			info: MCPToolInfo{
				Name:        "delete_expense",
				Description: "Delete an expense by ID.",
				InputSchema: schema(map[string]string{"expense_id": idProp}, "expense_id"),
			},
			call: s.deleteExpense,
		},
		{
			info: MCPToolInfo{
				Name:        "summarize",
				Description: "Summarize expenses by category within an inclusive date range.",
				InputSchema: schema(map[string]string{
					"start_date": dateProp, "end_date": dateProp, "category": categoryProp,
				}, "start_date", "end_date"),
			},
			call: s.summarize,
		},
	}

	tools := make(map[string]tool, len(list))
	for _, t := range list {
		tools[t.info.Name] = t
	}
	return tools
}

// schema renders a JSON Schema object from pre-rendered property schemas.
func schema(props map[string]string, required ...string) json.RawMessage {
	properties := make(map[string]json.RawMessage, len(props))
	for name, p := range props {
		properties[name] = json.RawMessage(p)
	}
	if required == nil {
		required = []string{}
	}
	out, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return out
}

func (s *Server) listTools() MCPListToolsResult {
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, 0, len(s.tools))}
	for _, t := range s.tools {
		result.Tools = append(result.Tools, t.info)
	}
	sort.Slice(result.Tools, func(i, j int) bool {
		return result.Tools[i].Name < result.Tools[j].Name
	})
	return result
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required")
		return
	}

	t, ok := s.tools[params.Name]
	if !ok {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool not found")
		return
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	ctx := r.Context()
	start := time.Now()
	result := t.call(ctx, args)

	text, err := json.Marshal(result)
	if err != nil {
		s.logger.ForContext(ctx).ErrorContext(ctx, "Failed to encode tool result",
			applog.FieldTool, params.Name, applog.FieldError, err)
		s.sendJSONRPCError(w, req.ID, JSONRPCInternalError, "tool execution failed")
		return
	}

	s.logger.ForContext(ctx).DebugContext(ctx, "tools/call complete",
		applog.FieldTool, params.Name,
		applog.FieldSuccess, !result.IsError(),
		applog.FieldDuration, time.Since(start).Milliseconds())

	s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(text)}},
		IsError: result.IsError(),
	})
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", core.ErrValidation, err)
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s is required", core.ErrValidation, name)
}

type addExpenseArgs struct {
	Date        *string  `json:"date"`
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Note        string   `json:"note"`
}

func (s *Server) addExpense(ctx context.Context, raw json.RawMessage) services.Result {
	var args addExpenseArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	switch {
	case args.Date == nil:
		return services.Failure(missing("date"))
	case args.Amount == nil:
		return services.Failure(missing("amount"))
	}

	id, err := s.ledger.AddExpense(ctx, core.NewExpense{
		Date:        *args.Date,
		Amount:      *args.Amount,
		Category:    args.Category,
		Subcategory: args.Subcategory,
		Note:        args.Note,
	})
	return services.Outcome(map[string]any{services.KeyID: id}, err)
}

// expenseID accepts an id sent as an integral number (2, 2.0) or as a
// numeric string ("2").
type expenseID int64

func (id *expenseID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expense_id must be an integer, got %s", data)
	}
	if i, err := n.Int64(); err == nil {
		*id = expenseID(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("expense_id must be an integer, got %s", data)
	}
	*id = expenseID(f)
	return nil
}

type idArgs struct {
	ExpenseID *expenseID `json:"expense_id"`
}

func (a idArgs) id() (int64, error) {
	if a.ExpenseID == nil {
		return 0, missing("expense_id")
	}
	return int64(*a.ExpenseID), nil
}

func (s *Server) getExpense(ctx context.Context, raw json.RawMessage) services.Result {
	var args idArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	id, err := args.id()
	if err != nil {
		return services.Failure(err)
	}
	e, err := s.ledger.GetExpense(ctx, id)
	return services.Outcome(map[string]any{services.KeyExpense: e}, err)
}

type rangeArgs struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Category  string  `json:"category"`
}

func (a rangeArgs) dateRange() (core.DateRange, error) {
	switch {
	case a.StartDate == nil:
		return core.DateRange{}, missing("start_date")
	case a.EndDate == nil:
		return core.DateRange{}, missing("end_date")
	}
	return core.DateRange{Start: *a.StartDate, End: *a.EndDate}, nil
}

func (s *Server) listExpenses(ctx context.Context, raw json.RawMessage) services.Result {
	var args rangeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	r, err := args.dateRange()
	if err != nil {
		return services.Failure(err)
	}
	list, err := s.ledger.ListExpenses(ctx, r)
	return services.Outcome(map[string]any{services.KeyExpenses: list}, err)
}

type editExpenseArgs struct {
	idArgs
	Date        *string  `json:"date"`
	Amount      *float64 `json:"amount"`
	Category    *string  `json:"category"`
	Subcategory *string  `json:"subcategory"`
	Note        *string  `json:"note"`
}

func (s *Server) editExpense(ctx context.Context, raw json.RawMessage) services.Result {
	var args editExpenseArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	id, err := args.id()
	if err != nil {
		return services.Failure(err)
	}
	updated, err := s.ledger.EditExpense(ctx, id, core.ExpensePatch{
		Date:        args.Date,
		Amount:      args.Amount,
		Category:    args.Category,
		Subcategory: args.Subcategory,
		Note:        args.Note,
	})
	return services.Outcome(map[string]any{services.KeyUpdatedID: updated}, err)
}

func (s *Server) deleteExpense(ctx context.Context, raw json.RawMessage) services.Result {
	var args idArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	id, err := args.id()
	if err != nil {
		return services.Failure(err)
	}
	deleted, err := s.ledger.DeleteExpense(ctx, id)
	return services.Outcome(map[string]any{services.KeyDeletedID: deleted}, err)
}

func (s *Server) summarize(ctx context.Context, raw json.RawMessage) services.Result {
	var args rangeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.Failure(err)
	}
	r, err := args.dateRange()
	if err != nil {
		return services.Failure(err)
	}
	sums, err := s.ledger.Summarize(ctx, r, args.Category)
	return services.Outcome(map[string]any{services.KeySummary: sums}, err)
}
