package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/escalona/flint/internal/channel"
	"github.com/escalona/flint/internal/config"
)

// challengeAdapter answers every webhook delivery with a fixed verbatim
// challenge response, the way a channel's subscription-verification
// handshake does.
type challengeAdapter struct{ response []byte }

func (a challengeAdapter) VerifyRequest(req *http.Request, rawBody []byte) bool { return true }

func (a challengeAdapter) ParseWebhook(rawBody []byte, headers http.Header) (channel.Parsed, error) {
	return channel.Parsed{Kind: channel.ParsedChallenge, Response: a.response}, nil
}

func (a challengeAdapter) Acknowledge(meta channel.Meta)         {}
func (a challengeAdapter) DeliverReply(meta channel.Meta, reply string) {}

func TestHandleWebhookWritesVerbatimChallengeBody(t *testing.T) {
	channels := channel.NewRegistry()
	channels.Register("test", challengeAdapter{response: []byte("hub.challenge=abc123")})

	server := New(nil, channels, config.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/test", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("expected application/octet-stream, got %q", got)
	}
	if rec.Body.String() != "hub.challenge=abc123" {
		t.Fatalf("expected the verbatim challenge body, got %q", rec.Body.String())
	}
}

func TestHandleWebhookUnknownAdapterIs404(t *testing.T) {
	channels := channel.NewRegistry()
	server := New(nil, channels, config.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/missing", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unregistered adapter, got %d", rec.Code)
	}
}
