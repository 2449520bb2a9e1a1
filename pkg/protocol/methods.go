// Package protocol names the wire constants of the Agent Protocol: the
// JSON-RPC methods the gateway calls on an agent child, and the
// notification/event vocabulary the Event Translator (internal/events)
// consumes. This dialect defines a small, closed method table; no legacy
// aliases or vendor-specific extensions apply.
package protocol

// Methods the gateway calls on the agent child over stdio.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized" // notification, not a request
	MethodThreadStart   = "thread/start"
	MethodThreadResume  = "thread/resume"
	MethodTurnStart     = "turn/start"
	MethodTurnInterrupt = "turn/interrupt"
)

// Reverse (server->client) request methods the peer auto-answers with a
// configured approval decision.
const (
	MethodRequestCommandApproval    = "item/commandExecution/requestApproval"
	MethodRequestFileChangeApproval = "item/fileChange/requestApproval"
)
