package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/escalona/flint/internal/acp"
	"github.com/escalona/flint/internal/gatewaytrace"
	"github.com/escalona/flint/pkg/protocol"
)

// ThreadRuntime is the in-memory pairing of a running agent child with the
// protocol peer used to drive it, attached to a specific thread.
type ThreadRuntime struct {
	Peer             *acp.Peer
	ProviderThreadID string
	Provider         string
	Model            string
	MCPProfileIDs    []string

	turnMu        sync.Mutex
	currentTurnID string
}

// setCurrentTurn records the in-flight turn id so POST .../interrupt can
// target it; cleared once the turn finishes.
func (rt *ThreadRuntime) setCurrentTurn(id string) {
	rt.turnMu.Lock()
	rt.currentTurnID = id
	rt.turnMu.Unlock()
}

// CurrentTurn returns the in-flight turn id, or "" if no turn is running.
func (rt *ThreadRuntime) CurrentTurn() string {
	rt.turnMu.Lock()
	defer rt.turnMu.Unlock()
	return rt.currentTurnID
}

// Desired describes the runtime a caller wants for a thread; EnsureRuntime
// reconciles the existing runtime (if any) against it.
type Desired struct {
	Provider          string
	Model             string
	MCPProfileIDs     []string
	ForceNewSession   bool
	ForceDefaultModel bool
}

// Spawner knows how to start an agent child for a given provider.
type Spawner interface {
	Command(provider string) (command []string, workdir string, env []string, err error)
}

// WireMapper builds the provider-specific wire parameters for thread/start
// and thread/resume, keeping the provider strategy table exhaustive at
// compile time. Implemented by internal/gateway.
type WireMapper interface {
	BuildThreadStart(provider string, desired Desired, mcpServers map[string]any, codexDefaults map[string]any) map[string]any
	BuildThreadResume(provider string, providerThreadID string, desired Desired, mcpServers map[string]any) map[string]any
}

func normalizeProfileIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func sameProfileIDs(a, b []string) bool {
	na, nb := normalizeProfileIDs(a), normalizeProfileIDs(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// Registry is the pool of live agent peers keyed by threadId.
// Mutated only by per-thread drains and by Close; external reads (only
// interruptThread) tolerate races and simply return false on a miss.
type Registry struct {
	mu       sync.Mutex
	runtimes map[string]*ThreadRuntime

	spawner       Spawner
	mapper        WireMapper
	clientName    string
	clientVersion string
	approval      acp.ApprovalDecision
}

// NewRegistry constructs an empty Registry.
func NewRegistry(spawner Spawner, mapper WireMapper, clientName, clientVersion string, approval acp.ApprovalDecision) *Registry {
	return &Registry{
		runtimes:      make(map[string]*ThreadRuntime),
		spawner:       spawner,
		mapper:        mapper,
		clientName:    clientName,
		clientVersion: clientVersion,
		approval:      approval,
	}
}

// Get returns the current runtime for threadID without creating one.
func (r *Registry) Get(threadID string) (*ThreadRuntime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.runtimes[threadID]
	return rt, ok
}

// Delete removes and closes the runtime for threadID, if any.
func (r *Registry) Delete(threadID string) {
	r.mu.Lock()
	rt, ok := r.runtimes[threadID]
	delete(r.runtimes, threadID)
	r.mu.Unlock()
	if ok {
		rt.Peer.Close()
	}
}

// CloseAll closes every live runtime, for gateway shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.runtimes
	r.runtimes = make(map[string]*ThreadRuntime)
	r.mu.Unlock()
	for _, rt := range all {
		rt.Peer.Close()
	}
}

// Interrupt sends turn/interrupt for threadID's in-flight turn, if any. It
// reports false when there is no active runtime or no turn currently
// running; POST .../interrupt maps either condition to a 409.
func (r *Registry) Interrupt(ctx context.Context, threadID string) (active bool, err error) {
	rt, ok := r.Get(threadID)
	if !ok {
		return false, nil
	}
	turnID := rt.CurrentTurn()
	if turnID == "" {
		return false, nil
	}
	rpcCtx, rpcSpan := gatewaytrace.StartRPC(ctx, protocol.MethodTurnInterrupt)
	_, err = rt.Peer.Call(rpcCtx, protocol.MethodTurnInterrupt, map[string]any{
		"threadId": rt.ProviderThreadID,
		"turnId":   turnID,
	})
	gatewaytrace.RecordError(rpcSpan, err)
	rpcSpan.End()
	if err != nil {
		return true, fmt.Errorf("runtime: turn/interrupt: %w", err)
	}
	return true, nil
}

// EnsureRuntime returns a live runtime for threadID, creating, recycling,
// or reusing one: an existing runtime is recycled when ForceNewSession is
// set, kept as is when its provider differs from desired.Provider,
// recycled when its MCP profile ids differ, and reused otherwise.
// storedProviderThreadID is the agent-side session id persisted from a
// prior turn, if any.
func (r *Registry) EnsureRuntime(ctx context.Context, threadID string, desired Desired, storedProviderThreadID string, mcpServers map[string]any, codexDefaults map[string]any) (*ThreadRuntime, error) {
	r.mu.Lock()
	existing, ok := r.runtimes[threadID]
	r.mu.Unlock()

	if ok {
		switch {
		case desired.ForceNewSession:
			r.Delete(threadID)
		case existing.Provider != desired.Provider:
			slog.Warn("runtime: not switching provider mid-thread", "thread_id", threadID, "existing", existing.Provider, "desired", desired.Provider)
			return existing, nil
		case !sameProfileIDs(existing.MCPProfileIDs, desired.MCPProfileIDs):
			r.Delete(threadID)
		default:
			return existing, nil
		}
	}

	command, workdir, env, err := r.spawner.Command(desired.Provider)
	if err != nil {
		return nil, fmt.Errorf("runtime: resolve command for provider %q: %w", desired.Provider, err)
	}

	peer, _, err := acp.Dial(ctx, command, workdir, env, r.clientName, r.clientVersion, r.approval)
	if err != nil {
		return nil, fmt.Errorf("runtime: dial agent child: %w", err)
	}

	providerThreadID := storedProviderThreadID
	if providerThreadID != "" {
		resumeParams := r.mapper.BuildThreadResume(desired.Provider, providerThreadID, desired, mcpServers)
		rpcCtx, rpcSpan := gatewaytrace.StartRPC(ctx, protocol.MethodThreadResume)
		result, err := peer.Call(rpcCtx, protocol.MethodThreadResume, resumeParams)
		gatewaytrace.RecordError(rpcSpan, err)
		rpcSpan.End()
		if err != nil {
			slog.Warn("runtime: thread/resume failed, falling back to thread/start", "thread_id", threadID, "error", err)
			providerThreadID = ""
		} else {
			providerThreadID = extractThreadID(result, providerThreadID)
		}
	}

	if providerThreadID == "" {
		startParams := r.mapper.BuildThreadStart(desired.Provider, desired, mcpServers, codexDefaults)
		rpcCtx, rpcSpan := gatewaytrace.StartRPC(ctx, protocol.MethodThreadStart)
		result, err := peer.Call(rpcCtx, protocol.MethodThreadStart, startParams)
		gatewaytrace.RecordError(rpcSpan, err)
		rpcSpan.End()
		if err != nil {
			peer.Close()
			return nil, fmt.Errorf("runtime: thread/start: %w", err)
		}
		providerThreadID = extractThreadID(result, "")
	}

	rt := &ThreadRuntime{
		Peer:             peer,
		ProviderThreadID: providerThreadID,
		Provider:         desired.Provider,
		Model:            desired.Model,
		MCPProfileIDs:    append([]string(nil), desired.MCPProfileIDs...),
	}

	r.mu.Lock()
	r.runtimes[threadID] = rt
	r.mu.Unlock()

	return rt, nil
}

func extractThreadID(raw []byte, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	var parsed struct {
		Thread struct {
			ID string `json:"id"`
		} `json:"thread"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fallback
	}
	if parsed.Thread.ID == "" {
		return fallback
	}
	return parsed.Thread.ID
}
