package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/escalona/flint/internal/config"
	"github.com/escalona/flint/internal/gatewaytrace"
	"github.com/escalona/flint/internal/idempotency"
	"github.com/escalona/flint/internal/mcpprofile"
	"github.com/escalona/flint/internal/runtime"
	"github.com/escalona/flint/internal/session"
	"github.com/escalona/flint/internal/thread"
)

// Engine composes thread identity, the thread store, the idempotency
// store, the per-thread queue, session lifecycle, and the runtime
// registry into a single handleMessage control flow.
type Engine struct {
	Settings *config.Settings
	Store    *thread.Store
	Idem     *idempotency.Store
	Queue    *runtime.Queue
	Registry *runtime.Registry
	Identity thread.IdentityLinks

	providerHints []string
	now           func() time.Time
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(settings *config.Settings, store *thread.Store, idem *idempotency.Store, queue *runtime.Queue, registry *runtime.Registry, identity thread.IdentityLinks, providerHints []string) *Engine {
	return &Engine{
		Settings:      settings,
		Store:         store,
		Idem:          idem,
		Queue:         queue,
		Registry:      registry,
		Identity:      identity,
		providerHints: providerHints,
		now:           time.Now,
	}
}

// HandleResult is the outcome HandleMessage hands back to an interface
// layer (HTTP or a channel adapter).
type HandleResult struct {
	ThreadID       string             `json:"threadId"`
	RoutingMode    thread.RoutingMode `json:"routingMode"`
	Provider       string             `json:"provider"`
	Reply          string             `json:"reply"`
	DurationMs     int64              `json:"durationMs"`
	Cached         bool               `json:"cached,omitempty"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
}

// FingerprintFunc computes the idempotency fingerprint for a message; it
// is defined per-route (the literal body for /v1/threads, threadId + ":"
// + body for /v1/threads/{id}), so callers supply it.
type FingerprintFunc func(msg thread.InboundMessage) string

// BodyFingerprint is the fallback fingerprint used when the caller supplies
// none: the hex SHA-256 of the message's JSON encoding, standing in for the
// raw request body when that isn't available.
func BodyFingerprint(msg thread.InboundMessage) string {
	b, _ := json.Marshal(msg)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HandleMessage resolves threadId, gates on idempotency if a key is
// present, serializes the turn behind the per-thread queue, evaluates
// session lifecycle, ensures a runtime, runs the turn, and persists the
// updated thread record.
func (e *Engine) HandleMessage(ctx context.Context, msg thread.InboundMessage, fingerprint FingerprintFunc, onEvent runtime.OnEvent) (HandleResult, error) {
	start := e.now()
	if msg.RoutingMode == "" {
		msg.RoutingMode = e.Settings.RoutingMode
	}
	threadID := thread.ResolveThreadID(msg, e.Identity)

	task := func() (any, error) {
		return e.process(ctx, threadID, msg, onEvent)
	}

	if msg.IdempotencyKey == "" {
		v, err := e.Queue.Enqueue(threadID, task).Wait()
		if err != nil {
			return HandleResult{}, err
		}
		res := v.(HandleResult)
		res.DurationMs = e.now().Sub(start).Milliseconds()
		return res, nil
	}

	if fingerprint == nil {
		fingerprint = BodyFingerprint
	}
	result, cached := e.Idem.Execute(msg.IdempotencyKey, fingerprint(msg), func() (any, error) {
		return e.Queue.Enqueue(threadID, task).Wait()
	})
	if result.Err != nil {
		return HandleResult{}, result.Err
	}
	res := result.Value.(HandleResult)
	res.Cached = cached
	res.IdempotencyKey = msg.IdempotencyKey
	res.DurationMs = e.now().Sub(start).Milliseconds()
	return res, nil
}

// process runs inside the per-thread queue's lane: it is never invoked
// concurrently with another call for the same threadID.
func (e *Engine) process(ctx context.Context, threadID string, msg thread.InboundMessage, onEvent runtime.OnEvent) (HandleResult, error) {
	ctx, turnSpan := gatewaytrace.StartTurn(ctx, threadID, e.Settings.Provider)
	defer turnSpan.End()

	stored, hadRecord := e.Store.Get(threadID)

	routingMode := msg.RoutingMode
	if routingMode == "" {
		routingMode = e.Settings.RoutingMode
	}

	resetReason := ""
	text := msg.Text
	provider := e.Settings.Provider
	model := e.Settings.Model
	mcpProfileIDs := e.Settings.DefaultMCPProfileIDs
	forceNewSession := !hadRecord
	forceDefaultModel := false

	if hadRecord {
		provider = stored.Provider
		model = stored.Model
		mcpProfileIDs = stored.MCPProfileIDs
	}

	cmd, triggered := session.ParseResetCommand(msg.Text, e.Settings.Session.ResetTriggers, e.providerHints, e.Settings.Session.GreetingPrompt)
	if triggered {
		resetReason = "trigger:" + cmd.Trigger
		forceNewSession = true
		text = cmd.NextText
		if cmd.ProviderOverride != "" {
			provider = cmd.ProviderOverride
		}
		if cmd.ModelOverride != "" {
			model = cmd.ModelOverride
		} else {
			forceDefaultModel = true
		}
	} else if hadRecord {
		sessType := session.ClassifySessionType(msg.ChannelThreadID, msg.ChatType == thread.ChatGroup || msg.ChatType == thread.ChatChannel)
		policy := session.ResolvePolicy(e.Settings.Session, msg.Channel, sessType)
		expiry := session.Evaluate(stored.UpdatedAt, e.now(), policy)
		if expiry.Expired {
			resetReason = expiry.Reason + "_expiry"
			forceNewSession = true
		}
	}

	if len(msg.MCPProfileIDs) > 0 {
		mcpProfileIDs = msg.MCPProfileIDs
	}

	composed, err := mcpprofile.Compose(e.Settings.MCPProfiles, mcpProfileIDs)
	if err != nil {
		return HandleResult{}, fmt.Errorf("gateway: compose mcp profiles: %w", err)
	}
	if e.Settings.MemoryEnabled {
		composed = mcpprofile.MergeBuiltinMemory(composed, config.MCPServerConfig{"command": "flint-memory-server"})
	}
	mcpServers := make(map[string]any, len(composed.Servers))
	for alias, cfg := range composed.Servers {
		mcpServers[alias] = cfg
	}

	desired := runtime.Desired{
		Provider:          provider,
		Model:             model,
		MCPProfileIDs:     mcpProfileIDs,
		ForceNewSession:   forceNewSession,
		ForceDefaultModel: forceDefaultModel,
	}

	if resetReason != "" {
		slog.Info("gateway: resetting session", "thread_id", threadID, "reason", resetReason)
	}

	storedProviderThreadID := ""
	if hadRecord && !forceNewSession {
		storedProviderThreadID = stored.ProviderThreadID
	}

	rt, err := e.Registry.EnsureRuntime(ctx, threadID, desired, storedProviderThreadID, mcpServers, CodexDefaults(e.Settings.Codex))
	if err != nil {
		gatewaytrace.RecordError(turnSpan, err)
		return HandleResult{}, fmt.Errorf("gateway: ensure runtime: %w", err)
	}

	turnResult, err := runtime.RunTurn(ctx, rt, text, onEvent)
	if err != nil && isModelFallbackError(err, model) && model != e.Settings.Model {
		slog.Warn("gateway: falling back to default model after agent error", "thread_id", threadID, "requested_model", model, "error", err)
		e.Registry.Delete(threadID)

		fallback := desired
		fallback.Model = ""
		fallback.ForceDefaultModel = true
		fallback.ForceNewSession = true

		rt, err = e.Registry.EnsureRuntime(ctx, threadID, fallback, "", mcpServers, CodexDefaults(e.Settings.Codex))
		if err != nil {
			gatewaytrace.RecordError(turnSpan, err)
			return HandleResult{}, fmt.Errorf("gateway: ensure runtime after model fallback: %w", err)
		}
		turnResult, err = runtime.RunTurn(ctx, rt, text, onEvent)
		if err == nil {
			turnResult.Reply = fmt.Sprintf("Note: model %q is unavailable; used the default model instead.\n%s", model, turnResult.Reply)
		}
	}
	if err != nil {
		gatewaytrace.RecordError(turnSpan, err)
		return HandleResult{}, err
	}

	now := e.now()
	rec := &thread.Record{
		ThreadID:         threadID,
		RoutingMode:      routingMode,
		Provider:         rt.Provider,
		ProviderThreadID: rt.ProviderThreadID,
		Model:            rt.Model,
		MCPProfileIDs:    mcpProfileIDs,
		Channel:          msg.Channel,
		UserID:           msg.UserID,
		ChatType:         msg.ChatType,
		PeerID:           msg.PeerID,
		AccountID:        msg.AccountID,
		IdentityID:       msg.IdentityID,
		ChannelThreadID:  msg.ChannelThreadID,
		UpdatedAt:        now,
	}
	if hadRecord {
		rec.CreatedAt = stored.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	_, persistSpan := gatewaytrace.StartPersist(ctx, threadID)
	if err := e.Store.Upsert(rec); err != nil {
		gatewaytrace.RecordError(persistSpan, err)
		slog.Error("gateway: persisting thread record failed", "thread_id", threadID, "error", err)
	}
	persistSpan.End()

	return HandleResult{
		ThreadID:    threadID,
		RoutingMode: routingMode,
		Provider:    rt.Provider,
		Reply:       turnResult.Reply,
	}, nil
}
