// Package mcp serves the ledger operations as MCP tools over the Streamable
// HTTP transport. Only plain JSON responses are produced; server initiated
// streams are not offered.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

const (
	headerSessionID       = "Mcp-Session-Id"
	headerProtocolVersion = "Mcp-Protocol-Version"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Ledger is the set of operations exposed as tools.
type Ledger interface {
	AddExpense(ctx context.Context, e core.NewExpense) (int64, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error)
	EditExpense(ctx context.Context, id int64, patch core.ExpensePatch) (int64, error)
	DeleteExpense(ctx context.Context, id int64) (int64, error)
	Summarize(ctx context.Context, r core.DateRange, category string) ([]core.CategorySummary, error)
	Categories() ([]byte, error)
}

// DefaultSessionIdleTimeout is how long a session survives without requests.
const DefaultSessionIdleTimeout = 30 * time.Minute

type session struct {
	id              string
	protocolVersion string
	createdAt       time.Time
	lastSeen        time.Time
}

// sessionStore manages active MCP sessions (in-memory). Sessions idle for
// longer than idleTimeout are dropped.
type sessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*session
	idleTimeout time.Duration
	now         func() time.Time
}

func newSessionStore(idleTimeout time.Duration) *sessionStore {
	return &sessionStore{
		sessions:    make(map[string]*session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// create registers a new session and prunes expired ones, so the map is
// bounded by the sessions active within one idle timeout.
func (s *sessionStore) create(protocolVersion string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
		}
	}

	sess := &session{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		createdAt:       now,
		lastSeen:        now,
	}
	s.sessions[sess.id] = sess
	return sess
}

// get returns a live session and marks it as used.
func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sessions[id]
	delete(s.sessions, id)
	return existed
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expired(sess *session, now time.Time) bool {
	return now.Sub(sess.lastSeen) > s.idleTimeout
}

// Config holds configuration for the MCP server.
type Config struct {
	Ledger  Ledger
	Logger  *applog.Logger
	Name    string
	Version string

	// SessionIdleTimeout defaults to DefaultSessionIdleTimeout.
	SessionIdleTimeout time.Duration
}

// Server implements the MCP endpoint.
type Server struct {
	ledger   Ledger
	logger   *applog.Logger
	name     string
	version  string
	tools    map[string]tool
	sessions *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if cfg.Name == "" {
		cfg.Name = "expense-tracker"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = DefaultSessionIdleTimeout
	}

	s := &Server{
		ledger:   cfg.Ledger,
		logger:   logger.WithComponent(applog.ComponentMCP),
		name:     cfg.Name,
		version:  cfg.Version,
		sessions: newSessionStore(cfg.SessionIdleTimeout),
	}
	s.tools = s.buildTools()
	return s, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	if !s.sessions.delete(sessionID) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.logger.ForContext(r.Context()).InfoContext(r.Context(), "MCP session terminated", applog.FieldSessionID, sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	protoVersion := r.Header.Get(headerProtocolVersion)

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large")
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if !isInitialize {
		if protoVersion != "" && !supportedProtocolVersions[protoVersion] {
			http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
			return
		}
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		if _, ok := s.sessions.get(sessionID); !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
	}

	ctx := r.Context()
	s.logger.ForContext(ctx).DebugContext(ctx, "MCP request",
		applog.FieldMethod, req.Method,
		"is_notification", isNotification,
		applog.FieldSessionID, sessionID)

	if isNotification {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, req)
	case "ping":
		s.sendJSONRPCResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.sendJSONRPCResult(w, req.ID, s.listTools())
	case "tools/call":
		s.handleToolsCall(w, r, req)
	case "resources/list":
		s.sendJSONRPCResult(w, req.ID, listResourcesResult{Resources: resources})
	case "resources/read":
		s.handleResourcesRead(w, r, req)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	sess := s.sessions.create(version)
	s.logger.ForContext(r.Context()).InfoContext(r.Context(), "MCP session created",
		applog.FieldSessionID, sess.id,
		"protocol_version", sess.protocolVersion)

	w.Header().Set(headerSessionID, sess.id)
	s.sendJSONRPCResult(w, req.ID, map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	})
}

func (s *Server) handleResourcesRead(w http.ResponseWriter, _ *http.Request, req JSONRPCRequest) {
	var params struct {
		URI string `json:"uri"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.URI != categoriesURI {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "resource not found")
		return
	}

	doc, err := s.ledger.Categories()
	if err != nil {
		doc = errorDocument(err)
	}
	s.sendJSONRPCResult(w, req.ID, readResourceResult{
		Contents: []resourceContent{{URI: categoriesURI, MimeType: "application/json", Text: string(doc)}},
	})
}

func errorDocument(err error) []byte {
	doc, _ := json.Marshal(map[string]string{"error": err.Error()})
	return doc
}

func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.send(w, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.send(w, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	})
}

func (s *Server) send(w http.ResponseWriter, resp JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to encode JSON-RPC response", applog.FieldError, err)
	}
}

