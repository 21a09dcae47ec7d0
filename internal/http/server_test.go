package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/mcp"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type nopLedger struct{}

func (nopLedger) AddExpense(context.Context, core.NewExpense) (int64, error) { return 1, nil }
func (nopLedger) GetExpense(context.Context, int64) (core.Expense, error) {
	return core.Expense{}, nil
}
func (nopLedger) ListExpenses(context.Context, core.DateRange) ([]core.Expense, error) {
	return nil, nil
}
func (nopLedger) EditExpense(context.Context, int64, core.ExpensePatch) (int64, error) {
	return 1, nil
}
func (nopLedger) DeleteExpense(context.Context, int64) (int64, error) { return 1, nil }
func (nopLedger) Summarize(context.Context, core.DateRange, string) ([]core.CategorySummary, error) {
	return nil, nil
}
func (nopLedger) Categories() ([]byte, error) { return []byte(`{"categories":[]}`), nil }

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func TestHealthAndReady(t *testing.T) {
	srv := NewServer(Options{Addr: ":0", Store: fakePinger{}, Logger: testLogger()})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-Id") == "" {
			t.Errorf("%s: missing request id header", path)
		}
	}
}

func TestReady_StoreDown(t *testing.T) {
	srv := NewServer(Options{Store: fakePinger{err: errors.New("disk gone")}, Logger: testLogger()})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
}

func newMCPServer(t *testing.T) *mcp.Server {
	t.Helper()
	m, err := mcp.NewServer(mcp.Config{Ledger: nopLedger{}, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMCPRoute(t *testing.T) {
	srv := NewServer(Options{MCP: newMCPServer(t), Logger: testLogger()})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Mcp-Session-Id") == "" {
		t.Error("missing session header")
	}
}

func TestMCPRoute_RateLimited(t *testing.T) {
	srv := NewServer(Options{MCP: newMCPServer(t), RateLimit: 1, Logger: testLogger()})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	codes := make([]int, 2)
	for i := range codes {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/mcp",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
		srv.Handler.ServeHTTP(rr, req)
		codes[i] = rr.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:5000", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:5000", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "garbage", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
