package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/escalona/flint/internal/thread"
)

// fakeAdapter is a minimal Adapter whose behavior is fixed per test case.
type fakeAdapter struct {
	verify   bool
	parsed   Parsed
	parseErr error

	acked     []Meta
	delivered []string
}

func (a *fakeAdapter) VerifyRequest(req *http.Request, rawBody []byte) bool { return a.verify }

func (a *fakeAdapter) ParseWebhook(rawBody []byte, headers http.Header) (Parsed, error) {
	return a.parsed, a.parseErr
}

func (a *fakeAdapter) Acknowledge(meta Meta) { a.acked = append(a.acked, meta) }

func (a *fakeAdapter) DeliverReply(meta Meta, reply string) { a.delivered = append(a.delivered, reply) }

func newTestRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodPost, "/webhooks/test", strings.NewReader(body))
}

func TestDispatchReturnsVerbatimChallengeResponse(t *testing.T) {
	registry := NewRegistry()
	adapter := &fakeAdapter{
		verify: true,
		parsed: Parsed{Kind: ParsedChallenge, Response: []byte("hub.challenge=12345")},
	}
	registry.Register("test", adapter)

	resp, err := registry.Dispatch(context.Background(), nil, "test", newTestRequest(t, "{}"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(resp) != "hub.challenge=12345" {
		t.Fatalf("expected the verbatim challenge body, got %q", resp)
	}
	if len(adapter.acked) != 0 || len(adapter.delivered) != 0 {
		t.Fatalf("a challenge must not be acknowledged or replied to")
	}
}

func TestDispatchIgnoresParsedIgnore(t *testing.T) {
	registry := NewRegistry()
	adapter := &fakeAdapter{verify: true, parsed: Parsed{Kind: ParsedIgnore}}
	registry.Register("test", adapter)

	resp, err := registry.Dispatch(context.Background(), nil, "test", newTestRequest(t, "{}"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected a nil response for an ignored payload, got %q", resp)
	}
}

func TestDispatchRejectsFailedVerification(t *testing.T) {
	registry := NewRegistry()
	adapter := &fakeAdapter{verify: false}
	registry.Register("test", adapter)

	_, err := registry.Dispatch(context.Background(), nil, "test", newTestRequest(t, "{}"))
	if err == nil {
		t.Fatalf("expected an error when VerifyRequest fails")
	}
}

func TestDispatchDedupesRepeatedEventID(t *testing.T) {
	registry := NewRegistry()
	adapter := &fakeAdapter{
		verify: true,
		parsed: Parsed{
			Kind:    ParsedMessage,
			Message: thread.InboundMessage{Channel: "test", ChatType: thread.ChatDirect, PeerID: "1", Text: "hi"},
			Meta:    Meta{EventID: "evt-1"},
		},
	}
	registry.Register("test", adapter)

	if registry.duplicate("evt-1") {
		t.Fatalf("first sighting of an event id must not be a duplicate")
	}
	if !registry.duplicate("evt-1") {
		t.Fatalf("second sighting of the same event id must be a duplicate")
	}
}
