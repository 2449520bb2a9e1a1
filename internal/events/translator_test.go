package events

import (
	"encoding/json"
	"testing"

	"github.com/escalona/flint/internal/acp"
)

func TestTranslateTextDelta(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{Method: "item/agentMessage/delta", Params: json.RawMessage(`{"delta":"hi"}`)})
	if !ok || ev.Kind != KindText || ev.Delta != "hi" {
		t.Fatalf("unexpected event: %+v ok=%v", ev, ok)
	}
}

func TestTranslateToolStartCommandExecution(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{
		Method: "item/started",
		Params: json.RawMessage(`{"item":{"type":"commandExecution","command":"ls","cwd":"/tmp"}}`),
	})
	if !ok || ev.Kind != KindToolStart || ev.Name != "Bash" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateFileChangeAddIsWrite(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{
		Method: "item/started",
		Params: json.RawMessage(`{"item":{"type":"fileChange","changes":[{"kind":"add","path":"a.go"}]}}`),
	})
	if !ok || ev.Name != "Write" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateFileChangeModifyIsEdit(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{
		Method: "item/started",
		Params: json.RawMessage(`{"item":{"type":"fileChange","changes":[{"kind":"modify","path":"a.go"}]}}`),
	})
	if !ok || ev.Name != "Edit" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateTurnCompletedFailedIsError(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{
		Method: "turn/completed",
		Params: json.RawMessage(`{"status":"failed","message":"boom"}`),
	})
	if !ok || ev.Kind != KindError || ev.Message != "boom" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateTurnCompletedOkIsDone(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{Method: "turn/completed", Params: json.RawMessage(`{"status":"ok"}`)})
	if !ok || ev.Kind != KindDone {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateApprovalRequestIsActivity(t *testing.T) {
	tr := New()
	ev, ok := tr.Translate(acp.Notification{Method: "item/commandExecution/requestApproval", Params: json.RawMessage(`{}`)})
	if !ok || ev.Kind != KindActivity {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestTranslateOutputDeltaIgnored(t *testing.T) {
	tr := New()
	_, ok := tr.Translate(acp.Notification{Method: "item/commandExecution/outputDelta", Params: json.RawMessage(`{}`)})
	if ok {
		t.Fatalf("expected outputDelta to be ignored")
	}
}
