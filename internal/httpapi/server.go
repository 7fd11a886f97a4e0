// Package httpapi exposes the Anthropic-compatible HTTP surface (spec §6):
// health/metrics/debug endpoints plus POST /v1/messages, which drives the
// orchestrator's step loop and can respond either as a single JSON body or
// as an SSE stream. Grounded on
// shillcollin-gai/agentx/httpapi/server.go's plain net/http.ServeMux
// registration style and its flusher-driven SSE loop in handleStreamEvents.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/agentproxy/internal/orchestrator"
	"github.com/stellarlinkco/agentproxy/internal/session"
)

var sessionHeaders = []string{
	"x-session-id",
	"x-claude-session-id",
	"x-claude-session",
	"x-claude-conversation-id",
	"anthropic-session-id",
}

// Metrics is a process-wide counters snapshot (spec §6 GET /metrics).
type Metrics struct {
	RequestsTotal          atomic.Int64
	CompletionsTotal       atomic.Int64
	CacheHitsTotal         atomic.Int64
	ToolCallsTotal         atomic.Int64
	ErrorsTotal            atomic.Int64
	StreamingSessionsTotal atomic.Int64
}

func (m *Metrics) snapshot() map[string]any {
	return map[string]any{
		"requests_total":           m.RequestsTotal.Load(),
		"completions_total":        m.CompletionsTotal.Load(),
		"cache_hits_total":         m.CacheHitsTotal.Load(),
		"tool_calls_total":         m.ToolCallsTotal.Load(),
		"errors_total":             m.ErrorsTotal.Load(),
		"streaming_sessions_total": m.StreamingSessionsTotal.Load(),
		"timestamp":                time.Now().UTC().Format(time.RFC3339),
	}
}

// Server binds the orchestrator and session store to the HTTP surface.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Metrics      *Metrics
}

func NewServer(o *orchestrator.Orchestrator, s *session.Store) *Server {
	return &Server{Orchestrator: o, Sessions: s, Metrics: &Metrics{}}
}

// Register wires the server's endpoints onto the provided mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/debug/session", s.handleDebugSession)
	mux.HandleFunc("/v1/messages", s.handleMessages)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics.snapshot())
}

func (s *Server) handleDebugSession(w http.ResponseWriter, r *http.Request) {
	id := resolveSessionIDFromHeaders(r)
	if id == "" {
		http.Error(w, `{"error":"missing session identifier"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.Sessions.Get(id)
	if err != nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Metrics.RequestsTotal.Add(1)

	body, err := readAndRestore(r)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid body: %v"}`, err), http.StatusBadRequest)
		return
	}

	sessionID, generated := resolveSessionID(r, body)
	if _, err := s.Sessions.GetOrCreateSession(sessionID, generated); err != nil {
		s.Metrics.ErrorsTotal.Add(1)
		http.Error(w, fmt.Sprintf(`{"error":"session init failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	var wantsStream struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(body, &wantsStream)

	result, err := s.Orchestrator.ProcessMessage(r.Context(), sessionID, body)
	if err != nil {
		s.Metrics.ErrorsTotal.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"type":  "error",
			"error": map[string]string{"type": "internal_error", "message": err.Error()},
		})
		return
	}
	s.recordTermination(result.TerminationReason)
	if result.ToolCallsExecuted > 0 {
		s.Metrics.ToolCallsTotal.Add(int64(result.ToolCallsExecuted))
	}

	if generated {
		w.Header().Set("x-session-id", sessionID)
	}

	if wantsStream.Stream {
		s.Metrics.StreamingSessionsTotal.Add(1)
		s.writeSSE(w, result)
		return
	}
	writeJSONRaw(w, result.Status, result.Body)
}

func (s *Server) recordTermination(reason orchestrator.TerminationReason) {
	switch reason {
	case orchestrator.ReasonCompletion:
		s.Metrics.CompletionsTotal.Add(1)
	case orchestrator.ReasonCacheHit:
		s.Metrics.CacheHitsTotal.Add(1)
	case orchestrator.ReasonProviderError:
		s.Metrics.ErrorsTotal.Add(1)
	}
}

// writeSSE emits the two-event stream spec §6 describes: one "message"
// event carrying the full response body, then an "end" event naming the
// termination reason.
func (s *Server) writeSSE(w http.ResponseWriter, result *orchestrator.Result) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	messageEvent := map[string]json.RawMessage{"type": json.RawMessage(`"message"`), "message": result.Body}
	if b, err := json.Marshal(messageEvent); err == nil {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
	}
	if flusher != nil {
		flusher.Flush()
	}

	endPayload, _ := json.Marshal(map[string]string{"termination": string(result.TerminationReason)})
	fmt.Fprintf(w, "event: end\ndata: %s\n\n", endPayload)
	if flusher != nil {
		flusher.Flush()
	}
}

// resolveSessionID implements spec §6's resolution order: headers, then
// body fields, then a generated UUID.
func resolveSessionID(r *http.Request, body []byte) (id string, generated bool) {
	if id := resolveSessionIDFromHeaders(r); id != "" {
		return id, false
	}

	var fields struct {
		SessionID      string `json:"session_id"`
		SessionIDCamel string `json:"sessionId"`
		ConversationID string `json:"conversation_id"`
	}
	_ = json.Unmarshal(body, &fields)
	switch {
	case fields.SessionID != "":
		return fields.SessionID, false
	case fields.SessionIDCamel != "":
		return fields.SessionIDCamel, false
	case fields.ConversationID != "":
		return fields.ConversationID, false
	}

	return uuid.NewString(), true
}

func resolveSessionIDFromHeaders(r *http.Request) string {
	for _, h := range sessionHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

func readAndRestore(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("[httpapi] marshal response: %v", err)
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	writeJSONRaw(w, status, b)
}

func writeJSONRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
