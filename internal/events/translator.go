// Package events translates Agent Protocol notifications into the uniform
// AgentEvent stream. Grounded on the codex appserver client's
// exhaustive method->event map idiom, narrowed to the Agent Protocol's
// single, closed notification vocabulary (no legacy aliases or prefix
// fallback, since unlike that client's multi-dialect backend this gateway
// speaks exactly one wire dialect).
package events

import (
	"encoding/json"

	"github.com/escalona/flint/internal/acp"
	"github.com/escalona/flint/pkg/protocol"
)

// Kind enumerates the uniform AgentEvent variants.
type Kind string

const (
	KindText      Kind = protocol.EventKindText
	KindReasoning Kind = protocol.EventKindReasoning
	KindToolStart Kind = protocol.EventKindToolStart
	KindToolEnd   Kind = protocol.EventKindToolEnd
	KindActivity  Kind = protocol.EventKindActivity
	KindDone      Kind = protocol.EventKindDone
	KindError     Kind = protocol.EventKindError
)

// Event is the uniform stream type delivered to callers.
type Event struct {
	Kind    Kind   `json:"type"`
	Delta   string `json:"delta,omitempty"`
	ToolID  string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Input   any    `json:"input,omitempty"`
	Result  any    `json:"result,omitempty"`
	IsError bool   `json:"isError,omitempty"`
	Usage   any    `json:"usage,omitempty"`
	Message string `json:"message,omitempty"`
}

type itemStarted struct {
	Item struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Tool      string `json:"tool"`
		Arguments any    `json:"arguments"`
		Command   string `json:"command"`
		Cwd       string `json:"cwd"`
		Changes   []struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"changes"`
	} `json:"item"`
}

type itemCompleted struct {
	Item struct {
		ID               string `json:"id"`
		Type             string `json:"type"`
		AggregatedOutput string `json:"aggregatedOutput"`
		ExitCode         int    `json:"exitCode"`
		Result           any    `json:"result"`
	} `json:"item"`
}

type turnCompleted struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Usage   any    `json:"usage"`
}

type deltaPayload struct {
	Delta string `json:"delta"`
}

// Translator is stateful only with respect to the current turn id; it
// can be re-created per turn.
type Translator struct {
	currentTurnID string
}

// New returns a fresh Translator for one turn.
func New() *Translator {
	return &Translator{}
}

// Translate maps one Agent Protocol notification to zero or one Event. A
// zero Event with false means the notification carries no externally visible
// event (e.g. item/*/outputDelta, which is ignored).
func (t *Translator) Translate(n acp.Notification) (Event, bool) {
	switch n.Method {
	case protocol.NotifyAgentMessageDelta:
		var p deltaPayload
		_ = json.Unmarshal(n.Params, &p)
		return Event{Kind: KindText, Delta: p.Delta}, true

	case protocol.NotifyReasoningTextDelta:
		var p deltaPayload
		_ = json.Unmarshal(n.Params, &p)
		return Event{Kind: KindReasoning, Delta: p.Delta}, true

	case protocol.NotifyItemStarted:
		return t.translateItemStarted(n.Params)

	case protocol.NotifyItemCompleted:
		return t.translateItemCompleted(n.Params)

	case protocol.NotifyTurnStarted:
		var p struct {
			Turn struct {
				ID string `json:"id"`
			} `json:"turn"`
		}
		_ = json.Unmarshal(n.Params, &p)
		t.currentTurnID = p.Turn.ID
		return Event{}, false

	case protocol.NotifyTurnCompleted:
		var p turnCompleted
		_ = json.Unmarshal(n.Params, &p)
		if p.Status == "failed" {
			return Event{Kind: KindError, Message: p.Message}, true
		}
		return Event{Kind: KindDone, Usage: p.Usage}, true

	case protocol.MethodRequestCommandApproval, protocol.MethodRequestFileChangeApproval:
		// Synthetic fan-out of a reverse approval request: resets the
		// inactivity watchdog without surfacing tool-call detail.
		return Event{Kind: KindActivity}, true

	default:
		if hasOutputDeltaSuffix(n.Method) {
			return Event{}, false
		}
		return Event{}, false
	}
}

func hasOutputDeltaSuffix(method string) bool {
	const suffix = "/outputDelta"
	if len(method) < len(suffix) {
		return false
	}
	return method[len(method)-len(suffix):] == suffix
}

func (t *Translator) translateItemStarted(params json.RawMessage) (Event, bool) {
	var p itemStarted
	_ = json.Unmarshal(params, &p)
	switch p.Item.Type {
	case protocol.ItemTypeCommandExecution:
		return Event{Kind: KindToolStart, ToolID: p.Item.ID, Name: "Bash", Input: map[string]string{"command": p.Item.Command, "cwd": p.Item.Cwd}}, true
	case protocol.ItemTypeFileChange:
		if len(p.Item.Changes) > 0 && p.Item.Changes[0].Kind == "add" {
			return Event{Kind: KindToolStart, ToolID: p.Item.ID, Name: "Write", Input: map[string]string{"file_path": p.Item.Changes[0].Path}}, true
		}
		path := ""
		if len(p.Item.Changes) > 0 {
			path = p.Item.Changes[0].Path
		}
		return Event{Kind: KindToolStart, ToolID: p.Item.ID, Name: "Edit", Input: map[string]string{"file_path": path}}, true
	case protocol.ItemTypeMCPToolCall:
		return Event{Kind: KindToolStart, ToolID: p.Item.ID, Name: p.Item.Tool, Input: p.Item.Arguments}, true
	default:
		return Event{}, false
	}
}

func (t *Translator) translateItemCompleted(params json.RawMessage) (Event, bool) {
	var p itemCompleted
	_ = json.Unmarshal(params, &p)
	switch p.Item.Type {
	case protocol.ItemTypeCommandExecution:
		return Event{Kind: KindToolEnd, ToolID: p.Item.ID, Result: p.Item.AggregatedOutput, IsError: p.Item.ExitCode != 0}, true
	case protocol.ItemTypeFileChange:
		return Event{Kind: KindToolEnd, ToolID: p.Item.ID, IsError: false}, true
	case protocol.ItemTypeMCPToolCall:
		return Event{Kind: KindToolEnd, ToolID: p.Item.ID, Result: p.Item.Result, IsError: false}, true
	default:
		return Event{}, false
	}
}
