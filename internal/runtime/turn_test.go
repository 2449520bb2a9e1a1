package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/escalona/flint/internal/acp"
	"github.com/escalona/flint/internal/events"
)

// fakeTurnScript answers initialize, then for any turn/start request emits
// two text deltas followed by a successful turn/completed notification.
const fakeTurnScript = `
read -r _init
printf '{"jsonrpc":"2.0","id":1,"result":{"agentInfo":{"name":"fake"}}}\n'
read -r _initd
read -r turnReq
id=$(printf '%s' "$turnReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"jsonrpc":"2.0","id":%s,"result":{"turn":{"id":"turn-1"}}}\n' "$id"
printf '{"jsonrpc":"2.0","method":"item/agentMessage/delta","params":{"delta":"hel"}}\n'
printf '{"jsonrpc":"2.0","method":"item/agentMessage/delta","params":{"delta":"lo"}}\n'
printf '{"jsonrpc":"2.0","method":"turn/completed","params":{"status":"completed"}}\n'
`

func dialFakeTurnPeer(t *testing.T) *acp.Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	peer, _, err := acp.Dial(ctx, []string{"sh", "-c", fakeTurnScript}, "", nil, "flint", "test", acp.ApprovalAccept)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer
}

func TestRunTurnConcatenatesTextDeltas(t *testing.T) {
	peer := dialFakeTurnPeer(t)
	rt := &ThreadRuntime{Peer: peer, ProviderThreadID: "server-thread-1", Provider: "claude"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []events.Kind
	result, err := RunTurn(ctx, rt, "hi", func(ev events.Event) { seen = append(seen, ev.Kind) })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Reply != "hello" {
		t.Fatalf("expected concatenated reply %q, got %q", "hello", result.Reply)
	}

	foundDone := false
	for _, k := range seen {
		if k == events.KindDone {
			foundDone = true
		}
	}
	if !foundDone {
		t.Fatalf("expected a done event to be forwarded to onEvent, got %v", seen)
	}
}

// fakeTurnErrorScript fails the turn after one delta.
const fakeTurnErrorScript = `
read -r _init
printf '{"jsonrpc":"2.0","id":1,"result":{"agentInfo":{"name":"fake"}}}\n'
read -r _initd
read -r turnReq
id=$(printf '%s' "$turnReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"jsonrpc":"2.0","id":%s,"result":{"turn":{"id":"turn-1"}}}\n' "$id"
printf '{"jsonrpc":"2.0","method":"item/agentMessage/delta","params":{"delta":"partial"}}\n'
printf '{"jsonrpc":"2.0","method":"turn/completed","params":{"status":"failed","message":"boom"}}\n'
`

func TestRunTurnPropagatesAgentErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, _, err := acp.Dial(ctx, []string{"sh", "-c", fakeTurnErrorScript}, "", nil, "flint", "test", acp.ApprovalAccept)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	rt := &ThreadRuntime{Peer: peer, ProviderThreadID: "server-thread-1"}
	_, err = RunTurn(ctx, rt, "hi", nil)
	if err == nil {
		t.Fatalf("expected RunTurn to return an error for a failed turn")
	}
}

// fakeTurnSilentScript acknowledges turn/start but then never sends another
// notification, so the inactivity watchdog is the only thing that ends the
// turn. It also answers the turn/interrupt call RunTurn is expected to send.
const fakeTurnSilentScript = `
read -r _init
printf '{"jsonrpc":"2.0","id":1,"result":{"agentInfo":{"name":"fake"}}}\n'
read -r _initd
read -r turnReq
id=$(printf '%s' "$turnReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"jsonrpc":"2.0","id":%s,"result":{"turn":{"id":"turn-1"}}}\n' "$id"
read -r interruptReq
iid=$(printf '%s' "$interruptReq" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$iid"
sleep 5
`

func TestRunTurnInterruptsOnWatchdogExpiry(t *testing.T) {
	previous := inactivityTimeout
	inactivityTimeout = 50 * time.Millisecond
	defer func() { inactivityTimeout = previous }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, _, err := acp.Dial(ctx, []string{"sh", "-c", fakeTurnSilentScript}, "", nil, "flint", "test", acp.ApprovalAccept)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	rt := &ThreadRuntime{Peer: peer, ProviderThreadID: "server-thread-1"}

	var seen []events.Kind
	_, err = RunTurn(ctx, rt, "hi", func(ev events.Event) { seen = append(seen, ev.Kind) })
	if err == nil {
		t.Fatalf("expected RunTurn to return an error on watchdog expiry")
	}
	if err.Error() != "runtime: no activity for 120 s" {
		t.Fatalf("expected the inactivity error, got %v", err)
	}

	found := false
	for _, k := range seen {
		if k == events.KindError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected onEvent to be called with a KindError event on timeout, got %v", seen)
	}
}
