// Package thread resolves inbound messages to deterministic thread
// identities and persists the durable record of each thread.
package thread

import "time"

// ChatType classifies the conversation a message arrived on.
type ChatType string

const (
	ChatDirect  ChatType = "direct"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// RoutingMode controls how direct-chat thread identity collapses across
// peers, channels and accounts.
type RoutingMode string

const (
	RoutingMain                  RoutingMode = "main"
	RoutingPerPeer               RoutingMode = "per-peer"
	RoutingPerChannelPeer        RoutingMode = "per-channel-peer"
	RoutingPerAccountChannelPeer RoutingMode = "per-account-channel-peer"
)

// InboundMessage is the normalized shape of a message arriving at the
// Gateway Engine, regardless of which channel adapter produced it.
type InboundMessage struct {
	Channel         string
	UserID          string
	Text            string
	Provider        string
	ChatType        ChatType
	PeerID          string
	AccountID       string
	IdentityID      string
	ChannelThreadID string
	MCPProfileIDs   []string
	RoutingMode     RoutingMode
	IdempotencyKey  string
}

// Record is the durable, persisted state of a thread. ProviderThreadID is
// the agent's own session identifier and is never exposed to external
// callers (see Public).
type Record struct {
	ThreadID         string      `json:"threadId"`
	RoutingMode      RoutingMode `json:"routingMode"`
	Provider         string      `json:"provider"`
	ProviderThreadID string      `json:"providerThreadId"`
	Model            string      `json:"model,omitempty"`
	MCPProfileIDs    []string    `json:"mcpProfileIds,omitempty"`
	Channel          string      `json:"channel"`
	UserID           string      `json:"userId"`
	ChatType         ChatType    `json:"chatType"`
	PeerID           string      `json:"peerId"`
	AccountID        string      `json:"accountId,omitempty"`
	IdentityID       string      `json:"identityId,omitempty"`
	ChannelThreadID  string      `json:"channelThreadId,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// PublicRecord is a Record with ProviderThreadID stripped, the shape
// returned to external callers from the HTTP surface.
type PublicRecord struct {
	ThreadID        string      `json:"threadId"`
	RoutingMode     RoutingMode `json:"routingMode"`
	Provider        string      `json:"provider"`
	Model           string      `json:"model,omitempty"`
	MCPProfileIDs   []string    `json:"mcpProfileIds,omitempty"`
	Channel         string      `json:"channel"`
	UserID          string      `json:"userId"`
	ChatType        ChatType    `json:"chatType"`
	PeerID          string      `json:"peerId"`
	AccountID       string      `json:"accountId,omitempty"`
	IdentityID      string      `json:"identityId,omitempty"`
	ChannelThreadID string      `json:"channelThreadId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Public strips ProviderThreadID for external exposure.
func (r *Record) Public() PublicRecord {
	return PublicRecord{
		ThreadID:        r.ThreadID,
		RoutingMode:     r.RoutingMode,
		Provider:        r.Provider,
		Model:           r.Model,
		MCPProfileIDs:   r.MCPProfileIDs,
		Channel:         r.Channel,
		UserID:          r.UserID,
		ChatType:        r.ChatType,
		PeerID:          r.PeerID,
		AccountID:       r.AccountID,
		IdentityID:      r.IdentityID,
		ChannelThreadID: r.ChannelThreadID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
