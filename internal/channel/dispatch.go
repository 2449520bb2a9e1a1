package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/escalona/flint/internal/events"
	"github.com/escalona/flint/internal/gateway"
	"github.com/escalona/flint/internal/thread"
)

// Registry holds adapters by name, keyed for outbound webhook dispatch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter

	dedupeMu sync.Mutex
	seen     map[string]time.Time
}

const eventDedupeTTL = 5 * time.Minute

// NewRegistry returns an empty adapter Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		seen:     make(map[string]time.Time),
	}
}

// Register plugs an adapter in under name, reachable at /webhooks/{name}.
func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

// Get returns the adapter registered under name, if any.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// duplicate reports whether eventID has already been seen within the last
// 5 minutes, recording it either way.
func (r *Registry) duplicate(eventID string) bool {
	if eventID == "" {
		return false
	}
	r.dedupeMu.Lock()
	defer r.dedupeMu.Unlock()

	cutoff := time.Now().Add(-eventDedupeTTL)
	for id, ts := range r.seen {
		if ts.Before(cutoff) {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[eventID]; ok {
		return true
	}
	r.seen[eventID] = time.Now()
	return false
}

// Dispatch handles one POST /webhooks/{name} request: verify, parse,
// dedupe, acknowledge, run the message through engine, and deliver the
// reply. It returns the verbatim challenge response body when
// ParseWebhook reports ParsedChallenge, so the HTTP surface can write it
// back instead of the generic {"ok":true} acknowledgement.
func (r *Registry) Dispatch(ctx context.Context, engine *gateway.Engine, name string, req *http.Request) ([]byte, error) {
	adapter, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("channel: no adapter registered for %q", name)
	}

	rawBody, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("channel: read webhook body: %w", err)
	}

	if !adapter.VerifyRequest(req, rawBody) {
		return nil, fmt.Errorf("channel: webhook request failed verification")
	}

	parsed, err := adapter.ParseWebhook(rawBody, req.Header)
	if err != nil {
		return nil, fmt.Errorf("channel: parse webhook: %w", err)
	}

	switch parsed.Kind {
	case ParsedIgnore:
		return nil, nil
	case ParsedChallenge:
		return parsed.Response, nil
	case ParsedMessage:
		if r.duplicate(parsed.Meta.EventID) {
			return nil, nil
		}
		adapter.Acknowledge(parsed.Meta)
		return nil, r.process(ctx, engine, adapter, parsed.Message, parsed.Meta)
	default:
		return nil, fmt.Errorf("channel: unknown parsed webhook kind %q", parsed.Kind)
	}
}

func (r *Registry) process(ctx context.Context, engine *gateway.Engine, adapter Adapter, msg thread.InboundMessage, meta Meta) error {
	var onEvent func(events.Event)
	if observer, ok := adapter.(EventObserver); ok {
		onEvent = func(ev events.Event) { observer.OnAgentEvent(meta, ev) }
	}

	result, err := engine.HandleMessage(ctx, msg, nil, onEvent)
	if err != nil {
		adapter.DeliverReply(meta, fmt.Sprintf("Sorry, something went wrong: %s", err))
		return err
	}
	adapter.DeliverReply(meta, result.Reply)
	return nil
}
