package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/escalona/flint/internal/acp"
)

// fakeAgentThreadScript answers initialize, then thread/start or
// thread/resume with a fixed thread id, then blocks until closed.
const fakeAgentThreadScript = `
read -r _init
printf '{"jsonrpc":"2.0","id":1,"result":{"agentInfo":{"name":"fake"}}}\n'
read -r _initd
while read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"jsonrpc":"2.0","id":%s,"result":{"thread":{"id":"server-thread-1"}}}\n' "$id"
done
`

type fakeSpawner struct{}

func (fakeSpawner) Command(provider string) ([]string, string, []string, error) {
	return []string{"sh", "-c", fakeAgentThreadScript}, "", nil, nil
}

type fakeMapper struct{}

func (fakeMapper) BuildThreadStart(provider string, desired Desired, mcpServers map[string]any, codexDefaults map[string]any) map[string]any {
	return map[string]any{"provider": provider}
}

func (fakeMapper) BuildThreadResume(provider string, providerThreadID string, desired Desired, mcpServers map[string]any) map[string]any {
	return map[string]any{"threadId": providerThreadID}
}

func newTestRegistry() *Registry {
	return NewRegistry(fakeSpawner{}, fakeMapper{}, "flint", "test", acp.ApprovalAccept)
}

func TestEnsureRuntimeSpawnsAndReuses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := newTestRegistry()
	desired := Desired{Provider: "claude", MCPProfileIDs: []string{"base"}}

	rt1, err := reg.EnsureRuntime(ctx, "thread-1", desired, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}
	if rt1.ProviderThreadID != "server-thread-1" {
		t.Fatalf("expected server-assigned thread id, got %q", rt1.ProviderThreadID)
	}

	rt2, err := reg.EnsureRuntime(ctx, "thread-1", desired, rt1.ProviderThreadID, nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime reuse: %v", err)
	}
	if rt2 != rt1 {
		t.Fatalf("expected the same runtime to be reused")
	}
	reg.CloseAll()
}

func TestEnsureRuntimeKeepsExistingOnProviderMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := newTestRegistry()
	rt1, err := reg.EnsureRuntime(ctx, "thread-1", Desired{Provider: "claude"}, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}

	rt2, err := reg.EnsureRuntime(ctx, "thread-1", Desired{Provider: "codex"}, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime with mismatched provider: %v", err)
	}
	if rt2 != rt1 {
		t.Fatalf("expected the existing runtime to be kept, not switched, on provider mismatch")
	}
	if rt2.Provider != "claude" {
		t.Fatalf("runtime provider should remain %q, got %q", "claude", rt2.Provider)
	}
	reg.CloseAll()
}

func TestEnsureRuntimeRecyclesOnForceNewSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := newTestRegistry()
	desired := Desired{Provider: "claude"}
	rt1, err := reg.EnsureRuntime(ctx, "thread-1", desired, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}

	rt2, err := reg.EnsureRuntime(ctx, "thread-1", Desired{Provider: "claude", ForceNewSession: true}, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime forceNewSession: %v", err)
	}
	if rt2 == rt1 {
		t.Fatalf("expected a fresh runtime when forceNewSession is set")
	}
	reg.CloseAll()
}

func TestEnsureRuntimeRecyclesOnProfileChange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := newTestRegistry()
	rt1, err := reg.EnsureRuntime(ctx, "thread-1", Desired{Provider: "claude", MCPProfileIDs: []string{"base"}}, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime: %v", err)
	}

	rt2, err := reg.EnsureRuntime(ctx, "thread-1", Desired{Provider: "claude", MCPProfileIDs: []string{"base", "web"}}, "", nil, nil)
	if err != nil {
		t.Fatalf("EnsureRuntime with new profile set: %v", err)
	}
	if rt2 == rt1 {
		t.Fatalf("expected recycling when mcpProfileIds change")
	}
	reg.CloseAll()
}
