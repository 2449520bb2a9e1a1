package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/escalona/flint/pkg/protocol"
)

// Notification is a dispatched Agent Protocol notification, or a synthetic
// "activity" beat generated in response to a server->client reverse
// request.
type Notification struct {
	Method string
	Params json.RawMessage
}

// ApprovalDecision is the auto-response the peer sends for known approval
// reverse requests.
type ApprovalDecision string

const (
	ApprovalAccept  ApprovalDecision = "accept"
	ApprovalDecline ApprovalDecision = "decline"
)

// knownApprovalMethods are the reverse-request methods the peer answers
// automatically.
var knownApprovalMethods = map[string]bool{
	protocol.MethodRequestCommandApproval:    true,
	protocol.MethodRequestFileChangeApproval: true,
}

// ExitError describes the child's exit; when the child exits while calls
// are outstanding, its text is delivered to every pending call as the
// message of an agent protocol error.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("agent child exited (code %d): %s", e.ExitCode, e.Stderr)
}

type pendingCall struct {
	result chan *rawLine
}

// Peer drives the Agent Protocol dialogue with one agent child: outgoing
// requests with id correlation, fire-and-forget notifications, dispatch of
// inbound notifications, and auto-response to reverse requests.
type Peer struct {
	transport *transport

	nextID  atomic.Int64
	pending sync.Map // int64 -> *pendingCall

	notifyMu sync.Mutex
	notify   chan Notification

	approvalDecision ApprovalDecision

	closeOnce sync.Once
	closed    chan struct{}

	readDone chan struct{}
}

// MethodTimeouts are the per-method call timeouts Call enforces.
var MethodTimeouts = map[string]time.Duration{
	protocol.MethodInitialize:    20 * time.Second,
	protocol.MethodThreadStart:   15 * time.Second,
	protocol.MethodThreadResume:  15 * time.Second,
	protocol.MethodTurnStart:     15 * time.Second,
	protocol.MethodTurnInterrupt: 10 * time.Second,
}

const defaultCallTimeout = 30 * time.Second

// Dial spawns the agent child and performs the Agent Protocol handshake:
// send `initialize`, await the result, then send `initialized`. Only then
// is the returned Peer ready for use.
func Dial(ctx context.Context, command []string, workdir string, env []string, clientName, clientVersion string, decision ApprovalDecision) (*Peer, json.RawMessage, error) {
	t, err := startTransport(ctx, command, workdir, env)
	if err != nil {
		return nil, nil, err
	}
	p := &Peer{
		transport:        t,
		notify:           make(chan Notification, 256),
		approvalDecision: decision,
		closed:           make(chan struct{}),
		readDone:         make(chan struct{}),
	}
	if p.approvalDecision == "" {
		p.approvalDecision = ApprovalAccept
	}
	go p.readLoop()

	params := map[string]any{
		"clientInfo": map[string]string{"name": clientName, "version": clientVersion},
	}
	result, err := p.Call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("acp: initialize: %w", err)
	}
	if err := p.Notify(protocol.MethodInitialized, nil); err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("acp: initialized notification: %w", err)
	}
	return p, result, nil
}

// Notifications returns the channel of inbound notifications (including
// synthetic "activity" beats triggered by reverse requests).
func (p *Peer) Notifications() <-chan Notification {
	return p.notify
}

// Call issues an outgoing request and waits for its correlated response,
// or for ctx to be done, or for the per-method timeout.
func (p *Peer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := p.nextID.Add(1)
	pc := &pendingCall{result: make(chan *rawLine, 1)}
	p.pending.Store(id, pc)
	defer p.pending.Delete(id)

	if err := p.transport.writeLine(outboundRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	timeout := MethodTimeouts[method]
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-pc.result:
		if line.Error != nil {
			return nil, line.Error
		}
		return line.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("acp: call %q timed out after %s", method, timeout)
	case <-p.closed:
		return nil, fmt.Errorf("acp: client closed")
	}
}

// Notify sends a fire-and-forget notification; no response is expected.
func (p *Peer) Notify(method string, params any) error {
	return p.transport.writeLine(outboundNotification{JSONRPC: "2.0", Method: method, Params: params})
}

func (p *Peer) respond(id int64, result any, err *rpcError) {
	_ = p.transport.writeLine(outboundResponse{JSONRPC: "2.0", ID: id, Result: result, Error: err})
}

// readLoop classifies every inbound line by the presence of id and method:
// id-only is a response, method-only is a notification, both is a reverse
// request requiring an answer.
func (p *Peer) readLoop() {
	defer close(p.readDone)
	for p.transport.stdout.Scan() {
		line := p.transport.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg rawLine
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Warn("acp: malformed line from agent child", "error", err)
			continue
		}

		switch {
		case msg.ID != nil && msg.Method == "":
			// Plain response.
			if v, ok := p.pending.Load(*msg.ID); ok {
				pc := v.(*pendingCall)
				select {
				case pc.result <- &msg:
				default:
				}
			}
		case msg.ID != nil && msg.Method != "":
			// Reverse (server->client) request: must always be answered.
			p.handleReverseRequest(*msg.ID, msg.Method, msg.Params)
		case msg.Method != "":
			// Notification.
			p.dispatch(Notification{Method: msg.Method, Params: msg.Params})
		}
	}

	exitCode := 0
	if p.transport.cmd.ProcessState != nil {
		exitCode = p.transport.cmd.ProcessState.ExitCode()
	}
	p.failPending(&ExitError{ExitCode: exitCode, Stderr: p.transport.stderr.String()})
}

func (p *Peer) handleReverseRequest(id int64, method string, params json.RawMessage) {
	if knownApprovalMethods[method] {
		decision := map[string]string{"decision": string(p.approvalDecision)}
		p.respond(id, decision, nil)
		p.dispatch(Notification{Method: method, Params: params})
		return
	}
	p.respond(id, nil, &rpcError{Code: -32601, Message: fmt.Sprintf("method not supported: %s", method)})
}

func (p *Peer) dispatch(n Notification) {
	select {
	case p.notify <- n:
	default:
		slog.Warn("acp: notification channel full, dropping", "method", n.Method)
	}
}

func (p *Peer) failPending(err error) {
	p.pending.Range(func(key, value any) bool {
		pc := value.(*pendingCall)
		select {
		case pc.result <- &rawLine{Error: &rpcError{Code: -32000, Message: err.Error()}}:
		default:
		}
		p.pending.Delete(key)
		return true
	})
}

// Close ends stdin (signaling the child to exit), waits briefly, then
// force-kills if needed, and rejects all pending calls. Idempotent.
func (p *Peer) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.transport.closeStdin()

		done := make(chan error, 1)
		go func() { done <- p.transport.cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if p.transport.cmd.Process != nil {
				_ = p.transport.cmd.Process.Kill()
			}
			<-done
		}
		p.failPending(fmt.Errorf("client closed"))
	})
	return closeErr
}

// Done reports the channel closed when the read loop exits (the child has
// stopped producing output).
func (p *Peer) Done() <-chan struct{} {
	return p.readDone
}
