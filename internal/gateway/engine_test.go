package gateway

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/escalona/flint/internal/acp"
	"github.com/escalona/flint/internal/config"
	"github.com/escalona/flint/internal/idempotency"
	"github.com/escalona/flint/internal/runtime"
	"github.com/escalona/flint/internal/thread"
)

// fakeAgentScript answers initialize, thread/start with a fixed thread id,
// then any turn/start with a single "hello" text delta and a completed
// status.
const fakeAgentScript = `
read -r _init
printf '{"jsonrpc":"2.0","id":1,"result":{"agentInfo":{"name":"fake"}}}\n'
read -r _initd
read -r startReq
startId=$(printf '%s' "$startReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"jsonrpc":"2.0","id":%s,"result":{"thread":{"id":"server-thread-1"}}}\n' "$startId"
while read -r turnReq; do
  turnId=$(printf '%s' "$turnReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"jsonrpc":"2.0","id":%s,"result":{"turn":{"id":"t"}}}\n' "$turnId"
  printf '{"jsonrpc":"2.0","method":"item/agentMessage/delta","params":{"delta":"hello"}}\n'
  printf '{"jsonrpc":"2.0","method":"turn/completed","params":{"status":"completed"}}\n'
done
`

type scriptSpawner struct{ script string }

func (s scriptSpawner) Command(provider string) ([]string, string, []string, error) {
	return []string{"sh", "-c", s.script}, "", nil, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	settings := config.Default()
	settings.RoutingMode = thread.RoutingPerPeer

	store, err := thread.NewStore(filepath.Join(t.TempDir(), "threads.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	registry := runtime.NewRegistry(scriptSpawner{fakeAgentScript}, NewWireMapper(), "flint", "test", acp.ApprovalAccept)
	engine := NewEngine(settings, store, idempotency.New(5*time.Minute), runtime.NewQueue(), registry, thread.IdentityLinks{}, []string{"claude", "codex"})
	t.Cleanup(registry.CloseAll)
	return engine
}

func TestHandleMessageNewDirectThread(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := thread.InboundMessage{
		Channel:     "telegram",
		UserID:      "1234",
		Text:        "hi",
		ChatType:    thread.ChatDirect,
		PeerID:      "1234",
		RoutingMode: thread.RoutingPerPeer,
	}

	res, err := engine.HandleMessage(ctx, msg, nil, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.ThreadID != "agent:main:direct:1234" {
		t.Fatalf("expected scenario S1 thread id, got %q", res.ThreadID)
	}
	if res.Reply != "hello" {
		t.Fatalf("expected reply %q, got %q", "hello", res.Reply)
	}
	if res.RoutingMode != thread.RoutingPerPeer {
		t.Fatalf("expected routingMode per-peer, got %q", res.RoutingMode)
	}

	stored, ok := engine.Store.Get(res.ThreadID)
	if !ok {
		t.Fatalf("expected the thread to be persisted")
	}
	if stored.ProviderThreadID != "server-thread-1" {
		t.Fatalf("expected provider thread id to be recorded, got %q", stored.ProviderThreadID)
	}
}

func TestHandleMessageIdempotentRepeatIsCached(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := thread.InboundMessage{
		Channel:        "telegram",
		UserID:         "1234",
		Text:           "hi",
		ChatType:       thread.ChatDirect,
		PeerID:         "1234",
		RoutingMode:    thread.RoutingPerPeer,
		IdempotencyKey: "k1",
	}

	first, err := engine.HandleMessage(ctx, msg, nil, nil)
	if err != nil {
		t.Fatalf("HandleMessage first: %v", err)
	}
	if first.Cached {
		t.Fatalf("first submission should not be cached")
	}

	second, err := engine.HandleMessage(ctx, msg, nil, nil)
	if err != nil {
		t.Fatalf("HandleMessage second: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second identical submission should be cached")
	}
	if second.Reply != first.Reply {
		t.Fatalf("cached reply should match the original: got %q want %q", second.Reply, first.Reply)
	}

	other := msg
	other.Text = "a different message"
	_, err = engine.HandleMessage(ctx, other, nil, nil)
	if err == nil {
		t.Fatalf("expected a conflict error for the same key with a different body")
	}
}

func TestHandleMessageChannelThreadCollapsesRegardlessOfRoutingMode(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := thread.InboundMessage{
		Channel:         "telegram",
		ChatType:        thread.ChatGroup,
		PeerID:          "peer-1",
		ChannelThreadID: "t-9",
		RoutingMode:     thread.RoutingMain,
		Text:            "hi",
	}

	res, err := engine.HandleMessage(ctx, msg, nil, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.ThreadID != "agent:main:telegram:group:peer-1:thread:t-9" {
		t.Fatalf("expected scenario S3 thread id, got %q", res.ThreadID)
	}
}
