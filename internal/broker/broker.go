// Package broker serves the JSON-RPC 2.0 + SSE surface agents use to talk
// to the Supervisor (spec.md §4.7).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Dispatcher resolves the four tool calls against supervisor state.
type Dispatcher interface {
	SendMessage(caller, to, message string) (string, error)
	CheckMessages(caller string, limit int) (string, error)
	ListAgents() (string, error)
	BroadcastMessage(caller, message string) (string, error)
}

// Server hosts the broker's HTTP surface on localhost:port.
type Server struct {
	dispatcher Dispatcher
	log        *slog.Logger
	srv        *http.Server

	mu     sync.Mutex
	tokens map[string]bool
}

const protocolVersion = "2024-11-05"

func New(addr string, dispatcher Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{dispatcher: dispatcher, log: log, tokens: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp/{name}", s.handleRPC)
	mux.HandleFunc("GET /mcp/{name}", s.handleSSE)
	mux.HandleFunc("POST /mcp/{name}/messages", s.handleRPC)
	mux.HandleFunc("GET /mcp/{name}/ws", s.handleWS)

	mux.HandleFunc("GET /.well-known/oauth-protected-resource", s.handleOAuthDiscovery)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleOAuthDiscovery)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("POST /token", s.handleToken)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving the broker until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("broker listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("broker serve: %w", err)
	}
	return nil
}

// Shutdown performs the two-phase HTTP shutdown named in spec.md §5.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	errParse          = -32700
	errMethodNotFound = -32601
	errInternal       = -32603
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	agentName := r.PathValue("name")

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: errParse, Message: "parse error"}})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	result, err := s.dispatch(agentName, req.Method, req.Params)
	if err != nil {
		if rpcErr, ok := err.(*rpcMethodError); ok {
			resp.Error = &rpcError{Code: rpcErr.Code, Message: rpcErr.Message}
		} else {
			resp.Error = &rpcError{Code: errInternal, Message: err.Error()}
		}
	} else {
		resp.Result = result
	}
	writeJSON(w, resp)
}

type rpcMethodError struct {
	Code    int
	Message string
}

func (e *rpcMethodError) Error() string { return e.Message }

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) dispatch(agentName, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": "orcd-broker", "version": "1.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}, nil
	case "tools/list":
		return map[string]any{"tools": toolCatalog}, nil
	case "tools/call":
		var p toolCallParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid tools/call params: %w", err)
		}
		return s.callTool(agentName, p)
	default:
		return nil, &rpcMethodError{Code: errMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

func (s *Server) callTool(caller string, p toolCallParams) (any, error) {
	switch p.Name {
	case "send_message":
		to, _ := p.Arguments["to"].(string)
		msg, _ := p.Arguments["message"].(string)
		if to == "" || msg == "" {
			return textResult("error: 'to' and 'message' are required"), nil
		}
		text, err := s.dispatcher.SendMessage(caller, to, msg)
		if err != nil {
			return textResult("error: " + err.Error()), nil
		}
		return textResult(text), nil
	case "check_messages":
		limit := 10
		if l, ok := p.Arguments["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}
		text, err := s.dispatcher.CheckMessages(caller, limit)
		if err != nil {
			return textResult("error: " + err.Error()), nil
		}
		return textResult(text), nil
	case "list_agents":
		text, err := s.dispatcher.ListAgents()
		if err != nil {
			return textResult("error: " + err.Error()), nil
		}
		return textResult(text), nil
	case "broadcast_message":
		msg, _ := p.Arguments["message"].(string)
		text, err := s.dispatcher.BroadcastMessage(caller, msg)
		if err != nil {
			return textResult("error: " + err.Error()), nil
		}
		return textResult(text), nil
	default:
		return nil, &rpcMethodError{Code: errMethodNotFound, Message: fmt.Sprintf("unknown tool %q", p.Name)}
	}
}

func textResult(text string) map[string]any {
	return map[string]any{"content": []map[string]any{{"type": "text", "text": text}}}
}

var toolCatalog = []map[string]any{
	{
		"name":        "send_message",
		"description": "Send a message to another agent's mailbox and notify its pane.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to":      map[string]any{"type": "string"},
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"to", "message"},
		},
	},
	{
		"name":        "check_messages",
		"description": "Drain and list this agent's pending mailbox messages.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "number"},
			},
		},
	},
	{
		"name":        "list_agents",
		"description": "List the names of all currently registered agents.",
		"inputSchema": map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		"name":        "broadcast_message",
		"description": "Send a message to every other agent's mailbox.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
	},
}

// handleSSE opens an SSE channel: a connected event followed by periodic
// keepalives, per spec.md §4.7's GET stream-request style.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "expected text/event-stream", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleWS is the broker's alternate streaming transport: a bidirectional
// companion to the SSE channel for clients that prefer a raw websocket over
// chunked HTTP, accepting the same "connected"/keepalive event shape.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	agentName := r.PathValue("name")
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost", "127.0.0.1*"},
	})
	if err != nil {
		s.log.Debug("websocket accept failed", slog.String("agent", agentName), slog.Any("error", err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, map[string]any{"event": "connected", "agent": agentName}); err != nil {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, map[string]any{"event": "keepalive"}); err != nil {
				conn.Close(websocket.StatusInternalError, "keepalive write failed")
				return
			}
		}
	}
}

// handleOAuthDiscovery satisfies MCP-style clients that probe for OAuth
// metadata before connecting. Binds only to loopback, so real verification
// is deliberately omitted (spec.md §4.7).
func (s *Server) handleOAuthDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                 "http://localhost",
		"authorization_endpoint": "http://localhost/authorize",
		"token_endpoint":         "http://localhost/token",
		"registration_endpoint":  "http://localhost/register",
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"client_id":     uuid.NewString(),
		"client_secret": uuid.NewString(),
	})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	code := uuid.NewString()
	redirect := r.URL.Query().Get("redirect_uri")
	if redirect == "" {
		writeJSON(w, map[string]string{"code": code})
		return
	}
	http.Redirect(w, r, redirect+"?code="+code, http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
