// Package session implements reset-policy evaluation and in-band
// reset-command parsing, as small pure functions in their own package.
package session

import (
	"time"

	"github.com/escalona/flint/internal/config"
)

// SessionType classifies the conversation a reset policy applies to.
type SessionType string

const (
	TypeThread SessionType = "thread"
	TypeDirect SessionType = "direct"
	TypeGroup  SessionType = "group"
)

// ClassifySessionType classifies by channelThreadId first: a non-empty
// channelThreadId makes it a "thread" regardless of chat type; otherwise
// direct vs. group.
func ClassifySessionType(channelThreadID string, isGroup bool) SessionType {
	if channelThreadID != "" {
		return TypeThread
	}
	if isGroup {
		return TypeGroup
	}
	return TypeDirect
}

// ResolvePolicy applies the resolution order: channel override, then
// session-type override, then default.
func ResolvePolicy(cfg config.SessionConfig, channel string, sessType SessionType) config.ResetPolicy {
	if cfg.IdleMinutesOnly != nil {
		return config.ResetPolicy{IdleMinutes: cfg.IdleMinutesOnly}
	}
	policy := cfg.Reset
	if p, ok := cfg.ResetByType[string(sessType)]; ok {
		policy = p
	}
	if p, ok := cfg.ResetByChannel[channel]; ok {
		policy = p
	}
	return policy
}

// Expiry is the result of evaluating a reset policy against a thread's
// last-updated time.
type Expiry struct {
	Expired bool
	Reason  string // "daily" or "idle"
}

// Evaluate implements the expiry rule: monotone in updatedAt (newer
// timestamps are never more likely to expire).
func Evaluate(updatedAt time.Time, now time.Time, policy config.ResetPolicy) Expiry {
	if policy.DailyAtHour != nil {
		boundary := time.Date(now.Year(), now.Month(), now.Day(), *policy.DailyAtHour, 0, 0, 0, now.Location())
		if now.Before(boundary) {
			boundary = boundary.AddDate(0, 0, -1)
		}
		if updatedAt.Before(boundary) {
			return Expiry{Expired: true, Reason: "daily"}
		}
	}
	if policy.IdleMinutes != nil {
		cutoff := now.Add(-time.Duration(*policy.IdleMinutes) * time.Minute)
		if updatedAt.Before(cutoff) {
			return Expiry{Expired: true, Reason: "idle"}
		}
	}
	return Expiry{}
}
