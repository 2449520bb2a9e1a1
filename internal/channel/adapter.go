// Package channel defines the Channel Adapter Contract: the
// pluggable interface a webhook-backed messaging channel implements to be
// reachable at POST /webhooks/{name}.
package channel

import (
	"net/http"

	"github.com/escalona/flint/internal/events"
	"github.com/escalona/flint/internal/thread"
)

// ParsedKind classifies the outcome of parsing a webhook payload.
type ParsedKind string

const (
	ParsedChallenge ParsedKind = "challenge"
	ParsedMessage   ParsedKind = "message"
	ParsedIgnore    ParsedKind = "ignore"
)

// Parsed is what an adapter's ParseWebhook returns.
type Parsed struct {
	Kind     ParsedKind
	Response []byte              // for ParsedChallenge: the verbatim response body
	Message  thread.InboundMessage // for ParsedMessage
	Meta     Meta                  // for ParsedMessage
}

// Meta is opaque per-webhook delivery context an adapter needs later to
// acknowledge, deliver a reply, or report event activity. eventID, when
// non-empty, is deduplicated by the gateway for 5 minutes.
type Meta struct {
	EventID string
	Data    any
}

// Adapter is the pluggable contract a webhook-backed channel implements.
type Adapter interface {
	// VerifyRequest authenticates an inbound webhook request (signature,
	// shared secret, etc.) before the raw body is parsed.
	VerifyRequest(req *http.Request, rawBody []byte) bool

	// ParseWebhook turns a verified payload into a Parsed outcome.
	ParseWebhook(rawBody []byte, headers http.Header) (Parsed, error)

	// Acknowledge is called before the gateway starts processing a parsed
	// message, so the channel's own retry logic doesn't redeliver it.
	Acknowledge(meta Meta)

	// DeliverReply sends the gateway's reply (or a formatted error string)
	// back out over the channel.
	DeliverReply(meta Meta, reply string)
}

// EventObserver is the optional onAgentEvent hook an adapter can implement
// to surface live per-event status (typing indicators, etc.).
type EventObserver interface {
	OnAgentEvent(meta Meta, event events.Event)
}
