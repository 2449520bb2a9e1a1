package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/escalona/flint/internal/events"
	"github.com/escalona/flint/internal/gatewaytrace"
	"github.com/escalona/flint/pkg/protocol"
)

func extractTurnID(raw json.RawMessage) string {
	var parsed struct {
		Turn struct {
			ID string `json:"id"`
		} `json:"turn"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ""
	}
	return parsed.Turn.ID
}

// TurnResult is what RunTurn hands back to the gateway engine: the
// concatenated reply text plus whatever usage the agent reported.
type TurnResult struct {
	Reply string
	Usage any
}

// OnEvent is an optional callback RunTurn invokes for every translated
// event, including text deltas, so a caller can stream them over SSE.
type OnEvent func(events.Event)

// inactivityTimeout is DefaultInactivityTimeout by default; tests shorten it
// to exercise watchdog expiry without waiting out the real window.
var inactivityTimeout = DefaultInactivityTimeout

// RunTurn sends turn/start, then drains the runtime's translated
// notification stream until a terminal (done/error) event arrives,
// resetting the inactivity watchdog on every event in between. It
// always waits for the stream to finish before returning, even
// on a terminal error, so the watchdog and the peer's notification
// channel are never left mid-turn.
func RunTurn(ctx context.Context, rt *ThreadRuntime, text string, onEvent OnEvent) (TurnResult, error) {
	params := map[string]any{
		"threadId": rt.ProviderThreadID,
		"input":    []map[string]string{{"type": "text", "text": text}},
	}
	if rt.Model != "" {
		params["model"] = rt.Model
	}

	rpcCtx, rpcSpan := gatewaytrace.StartRPC(ctx, protocol.MethodTurnStart)
	startResult, err := rt.Peer.Call(rpcCtx, protocol.MethodTurnStart, params)
	gatewaytrace.RecordError(rpcSpan, err)
	rpcSpan.End()
	if err != nil {
		return TurnResult{}, fmt.Errorf("runtime: turn/start: %w", err)
	}
	rt.setCurrentTurn(extractTurnID(startResult))
	defer rt.setCurrentTurn("")

	timedOut := make(chan struct{})
	watchdog := NewWatchdog(inactivityTimeout, func() { close(timedOut) })
	defer watchdog.Stop()

	translator := events.New()
	var reply strings.Builder

	for {
		select {
		case n := <-rt.Peer.Notifications():
			watchdog.Beat()
			ev, ok := translator.Translate(n)
			if !ok {
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Kind {
			case events.KindText:
				reply.WriteString(ev.Delta)
			case events.KindError:
				return TurnResult{Reply: reply.String()}, fmt.Errorf("runtime: agent reported a turn error: %s", ev.Message)
			case events.KindDone:
				return TurnResult{Reply: reply.String(), Usage: ev.Usage}, nil
			}
		case <-rt.Peer.Done():
			return TurnResult{Reply: reply.String()}, fmt.Errorf("runtime: agent child exited mid-turn")
		case <-timedOut:
			interruptCtx, interruptSpan := gatewaytrace.StartRPC(ctx, protocol.MethodTurnInterrupt)
			_, interruptErr := rt.Peer.Call(interruptCtx, protocol.MethodTurnInterrupt, map[string]any{
				"threadId": rt.ProviderThreadID,
				"turnId":   rt.CurrentTurn(),
			})
			gatewaytrace.RecordError(interruptSpan, interruptErr)
			interruptSpan.End()
			if onEvent != nil {
				onEvent(events.Event{Kind: events.KindError, Message: "no activity for 120 s"})
			}
			return TurnResult{Reply: reply.String()}, fmt.Errorf("runtime: no activity for 120 s")
		case <-ctx.Done():
			return TurnResult{Reply: reply.String()}, ctx.Err()
		}
	}
}
