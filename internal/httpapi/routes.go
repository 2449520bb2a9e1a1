package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/escalona/flint/internal/gateway"
	"github.com/escalona/flint/internal/httperror"
	"github.com/escalona/flint/internal/idempotency"
	"github.com/escalona/flint/internal/thread"
)

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /v1/health", s.withLogging(s.handleHealth))
	s.mux.HandleFunc("GET /v1/threads", s.withLogging(s.auth(s.handleListThreads)))
	s.mux.HandleFunc("GET /v1/threads/{id}", s.withLogging(s.auth(s.handleGetThread)))
	s.mux.HandleFunc("POST /v1/threads", s.withLogging(s.auth(s.withRateLimit(s.handleNewThread))))
	s.mux.HandleFunc("POST /v1/threads/{id}", s.withLogging(s.auth(s.withRateLimit(s.handleContinueThread))))
	s.mux.HandleFunc("POST /v1/threads/{id}/interrupt", s.withLogging(s.auth(s.handleInterrupt)))
	s.mux.HandleFunc("POST /webhooks/{name}", s.withLogging(s.handleWebhook))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                 true,
		"provider":           s.Settings.Provider,
		"defaultRoutingMode": s.Settings.RoutingMode,
	})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channelFilter := q.Get("channel")
	routingModeFilter := q.Get("routingMode")

	records := s.Engine.Store.List()
	out := make([]thread.PublicRecord, 0, len(records))
	for _, rec := range records {
		if channelFilter != "" && rec.Channel != channelFilter {
			continue
		}
		if routingModeFilter != "" && string(rec.RoutingMode) != routingModeFilter {
			continue
		}
		out = append(out, rec.Public())
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.Engine.Store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Thread not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec.Public()})
}

// inboundBody mirrors thread.InboundMessage's wire shape for POST
// /v1/threads, plus an explicitly-rejected raw mcpServers field.
type inboundBody struct {
	Channel         string          `json:"channel"`
	UserID          string          `json:"userId"`
	Text            string          `json:"text"`
	Provider        string          `json:"provider,omitempty"`
	ChatType        string          `json:"chatType,omitempty"`
	PeerID          string          `json:"peerId,omitempty"`
	AccountID       string          `json:"accountId,omitempty"`
	IdentityID      string          `json:"identityId,omitempty"`
	ChannelThreadID string          `json:"channelThreadId,omitempty"`
	MCPProfileIDs   []string        `json:"mcpProfileIds,omitempty"`
	RoutingMode     string          `json:"routingMode,omitempty"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty"`
	MCPServers      json.RawMessage `json:"mcpServers,omitempty"`
}

var validRoutingModes = map[string]bool{
	string(thread.RoutingMain):                  true,
	string(thread.RoutingPerPeer):                true,
	string(thread.RoutingPerChannelPeer):         true,
	string(thread.RoutingPerAccountChannelPeer):  true,
}

var validChatTypes = map[string]bool{
	string(thread.ChatDirect):  true,
	string(thread.ChatGroup):   true,
	string(thread.ChatChannel): true,
}

func (b inboundBody) validate() error {
	if strings.TrimSpace(b.Channel) == "" {
		return httperror.Validation("channel is required.")
	}
	if strings.TrimSpace(b.UserID) == "" {
		return httperror.Validation("userId is required.")
	}
	if strings.TrimSpace(b.Text) == "" {
		return httperror.Validation("text is required.")
	}
	if b.RoutingMode != "" && !validRoutingModes[b.RoutingMode] {
		return httperror.Validation("routingMode must be one of main, per-peer, per-channel-peer, per-account-channel-peer.")
	}
	if b.ChatType != "" && !validChatTypes[b.ChatType] {
		return httperror.Validation("chatType must be one of direct, group, channel.")
	}
	if b.MCPProfileIDs != nil {
		if len(b.MCPProfileIDs) == 0 {
			return httperror.Validation("mcpProfileIds must be a non-empty array if present.")
		}
		for _, id := range b.MCPProfileIDs {
			if strings.TrimSpace(id) == "" {
				return httperror.Validation("mcpProfileIds must be a non-empty array of non-empty strings.")
			}
		}
	}
	if len(b.MCPServers) > 0 {
		return httperror.Validation("mcpServers is not an accepted request field.")
	}
	return nil
}

func (b inboundBody) toMessage() thread.InboundMessage {
	return thread.InboundMessage{
		Channel:         b.Channel,
		UserID:          b.UserID,
		Text:            b.Text,
		Provider:        b.Provider,
		ChatType:        thread.ChatType(b.ChatType),
		PeerID:          b.PeerID,
		AccountID:       b.AccountID,
		IdentityID:      b.IdentityID,
		ChannelThreadID: b.ChannelThreadID,
		MCPProfileIDs:   b.MCPProfileIDs,
		RoutingMode:     thread.RoutingMode(b.RoutingMode),
		IdempotencyKey:  b.IdempotencyKey,
	}
}

func (s *Server) idempotencyKey(r *http.Request, bodyKey string) string {
	if h := r.Header.Get("Idempotency-Key"); h != "" {
		return h
	}
	return bodyKey
}

func (s *Server) handleNewThread(w http.ResponseWriter, r *http.Request) {
	var body inboundBody
	rawBody, err := readLimitedBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Could not read request body."})
		return
	}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed JSON body."})
		return
	}
	if err := body.validate(); err != nil {
		writeJSON(w, httperror.StatusCode(err), httperror.Body(err))
		return
	}

	msg := body.toMessage()
	msg.IdempotencyKey = s.idempotencyKey(r, body.IdempotencyKey)
	fingerprint := func(thread.InboundMessage) string { return string(rawBody) }

	s.respond(w, r, msg, fingerprint)
}

func (s *Server) handleContinueThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stored, ok := s.Engine.Store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Thread not found."})
		return
	}

	var body struct {
		Text           string `json:"text"`
		IdempotencyKey string `json:"idempotencyKey,omitempty"`
	}
	rawBody, err := readLimitedBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Could not read request body."})
		return
	}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed JSON body."})
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required."})
		return
	}

	msg := thread.InboundMessage{
		Channel:         stored.Channel,
		UserID:          stored.UserID,
		Text:            body.Text,
		Provider:        stored.Provider,
		ChatType:        stored.ChatType,
		PeerID:          stored.PeerID,
		AccountID:       stored.AccountID,
		IdentityID:      stored.IdentityID,
		ChannelThreadID: stored.ChannelThreadID,
		MCPProfileIDs:   stored.MCPProfileIDs,
		RoutingMode:     stored.RoutingMode,
	}
	msg.IdempotencyKey = s.idempotencyKey(r, body.IdempotencyKey)
	fingerprint := func(thread.InboundMessage) string { return id + ":" + string(rawBody) }

	s.respond(w, r, msg, fingerprint)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, msg thread.InboundMessage, fingerprint gateway.FingerprintFunc) {
	if wantsSSE(r) {
		sw := newSSEWriter(w)
		result, err := s.Engine.HandleMessage(r.Context(), msg, fingerprint, sw.forwardAgentEvent)
		if err != nil {
			sw.writeError(err.Error())
			return
		}
		sw.writeResult(result)
		return
	}

	result, err := s.Engine.HandleMessage(r.Context(), msg, fingerprint, nil)
	if err != nil {
		if isConflict(err) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "cached": true})
			return
		}
		slog.Error("httpapi: handleMessage failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error.", "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func isConflict(err error) bool {
	var conflict idempotency.ConflictError
	return errors.As(err, &conflict)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Engine.Store.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Thread not found."})
		return
	}
	active, err := s.Engine.Registry.Interrupt(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error.", "details": err.Error()})
		return
	}
	if !active {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "No active runtime for this thread."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "threadId": id, "interrupted": true})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.Channels.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No channel adapter registered for this name."})
		return
	}
	challenge, err := s.Channels.Dispatch(r.Context(), s.Engine, name, r)
	if err != nil {
		slog.Error("httpapi: webhook dispatch failed", "channel", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error.", "details": err.Error()})
		return
	}
	if challenge != nil {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(challenge)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func readLimitedBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}
