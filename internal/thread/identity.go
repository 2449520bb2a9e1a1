package thread

import (
	"fmt"
	"strings"
)

// IdentityLinks collapses cross-channel identities: a canonical id maps to
// a set of tokens (either bare peer ids or "channel:peerId" pairs) that all
// resolve to the same direct-chat thread. Ordering is insertion order, kept
// in Order so resolution is deterministic for a given configuration.
type IdentityLinks struct {
	Order     []string
	Canonical map[string][]string
}

// NewIdentityLinks builds an IdentityLinks from an ordered list of
// (canonical, tokens) pairs.
func NewIdentityLinks(pairs ...IdentityLinkEntry) IdentityLinks {
	links := IdentityLinks{Canonical: make(map[string][]string, len(pairs))}
	for _, p := range pairs {
		if _, exists := links.Canonical[p.Canonical]; !exists {
			links.Order = append(links.Order, p.Canonical)
		}
		links.Canonical[p.Canonical] = p.Tokens
	}
	return links
}

// IdentityLinkEntry is one canonical-id -> tokens mapping.
type IdentityLinkEntry struct {
	Canonical string
	Tokens    []string
}

func (l IdentityLinks) match(channel, peerID string) (string, bool) {
	bare := peerID
	scoped := channel + ":" + peerID
	for _, canonical := range l.Order {
		for _, token := range l.Canonical[canonical] {
			if token == bare || token == scoped {
				return canonical, true
			}
		}
	}
	return "", false
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveThreadID is a pure function of its normalized inputs: equal
// normalized inputs always yield equal thread ids.
func ResolveThreadID(msg InboundMessage, links IdentityLinks) string {
	channel := normalizeToken(msg.Channel)
	accountID := normalizeToken(msg.AccountID)
	if accountID == "" {
		accountID = "default"
	}
	peerID := normalizeToken(msg.PeerID)
	if peerID == "" {
		peerID = normalizeToken(msg.UserID)
	}
	if peerID == "" {
		peerID = "unknown"
	}
	identityID := normalizeToken(msg.IdentityID)

	if msg.ChatType == ChatGroup || msg.ChatType == ChatChannel {
		base := fmt.Sprintf("agent:main:%s:%s:%s", channel, msg.ChatType, peerID)
		if t := strings.TrimSpace(msg.ChannelThreadID); t != "" {
			base += ":thread:" + t
		}
		return base
	}

	principal := identityID
	if principal == "" {
		if canonical, ok := links.match(channel, peerID); ok {
			principal = canonical
		} else {
			principal = peerID
		}
	}

	threadSuffix := ""
	if t := strings.TrimSpace(msg.ChannelThreadID); t != "" {
		threadSuffix = ":thread:" + t
	}

	switch msg.RoutingMode {
	case RoutingMain:
		return "agent:main:main"
	case RoutingPerPeer:
		return "agent:main:direct:" + principal
	case RoutingPerChannelPeer:
		return fmt.Sprintf("agent:main:%s:direct:%s%s", channel, principal, threadSuffix)
	case RoutingPerAccountChannelPeer:
		return fmt.Sprintf("agent:main:%s:%s:direct:%s%s", channel, accountID, principal, threadSuffix)
	default:
		return fmt.Sprintf("agent:main:%s:direct:%s%s", channel, principal, threadSuffix)
	}
}
