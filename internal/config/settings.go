// Package config loads Flint's settings file and overlays environment
// variables on top of it.
package config

import "github.com/escalona/flint/internal/thread"

// MCPServerConfig is an opaque bag of configuration for one named MCP
// server. Its shape is intentionally loose (map[string]any) since the
// agent child interprets it, not the gateway.
type MCPServerConfig map[string]any

// MCPProfile is a named, composable bundle of server configurations.
type MCPProfile struct {
	Extends []string                   `json:"extends,omitempty"`
	Servers map[string]MCPServerConfig `json:"servers,omitempty"`
}

// ResetPolicy is the resolved session-reset policy for a channel or
// session type. An empty policy (both fields zero) means "off".
type ResetPolicy struct {
	DailyAtHour *int `json:"dailyAtHour,omitempty"`
	IdleMinutes *int `json:"idleMinutes,omitempty"`
}

// SessionConfig groups the reset-policy configuration for a session.
type SessionConfig struct {
	Reset           ResetPolicy            `json:"reset"`
	ResetByType     map[string]ResetPolicy `json:"resetByType,omitempty"`
	ResetByChannel  map[string]ResetPolicy `json:"resetByChannel,omitempty"`
	ResetTriggers   []string               `json:"resetTriggers,omitempty"`
	GreetingPrompt  string                 `json:"greetingPrompt,omitempty"`
	IdleMinutesOnly *int                   `json:"idleMinutes,omitempty"` // legacy top-level form
}

// CodexConfig holds defaults applied only to Codex-shaped provider
// threads.
type CodexConfig struct {
	ApprovalPolicy string `json:"approvalPolicy,omitempty"`
	SandboxMode    string `json:"sandboxMode,omitempty"`
}

// Settings is the root settings-file shape.
type Settings struct {
	Port                 int                       `json:"port,omitempty"`
	Provider             string                    `json:"provider,omitempty"`
	Model                string                     `json:"model,omitempty"`
	RoutingMode          thread.RoutingMode        `json:"routingMode,omitempty"`
	StorePath            string                    `json:"storePath,omitempty"`
	IdempotencyTTLMs     int                       `json:"idempotencyTtlMs,omitempty"`
	DefaultMCPProfileIDs []string                  `json:"defaultMcpProfileIds,omitempty"`
	MCPProfiles          map[string]MCPProfile     `json:"mcpProfiles,omitempty"`
	Session              SessionConfig             `json:"session"`
	Codex                CodexConfig               `json:"codex"`
	IdentityLinks        map[string][]string       `json:"identityLinks,omitempty"`
	MemoryEnabled        bool                      `json:"memoryEnabled,omitempty"`
	BearerToken          string                    `json:"bearerToken,omitempty"`
	AgentCommand         []string                  `json:"agentCommand,omitempty"`
	ApprovalDecision     string                    `json:"approvalDecision,omitempty"`
	KnownProviders       []string                  `json:"knownProviders,omitempty"`
}

// ProviderHints returns the provider names the in-band reset command's
// "/new {provider}/{model}" form recognizes: the configured Provider plus
// every entry in KnownProviders, deduplicated.
func (s *Settings) ProviderHints() []string {
	seen := make(map[string]bool, len(s.KnownProviders)+1)
	var hints []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		hints = append(hints, p)
	}
	add(s.Provider)
	for _, p := range s.KnownProviders {
		add(p)
	}
	return hints
}

// Default returns the zero-config settings: a daily reset at 4am local,
// "/new"/"/reset" in-band triggers, and the rest of the built-in defaults.
func Default() *Settings {
	hour := 4
	return &Settings{
		Port:             8788,
		Provider:         "claude",
		RoutingMode:      thread.RoutingPerPeer,
		StorePath:        "~/.flint/gateway/threads.json",
		IdempotencyTTLMs: 5 * 60 * 1000,
		Session: SessionConfig{
			Reset:          ResetPolicy{DailyAtHour: &hour},
			ResetTriggers:  []string{"/new", "/reset"},
			GreetingPrompt: "New session started. How can I help?",
		},
		ApprovalDecision: "accept",
		AgentCommand:     []string{"codex-agent", "--protocol=acp"},
		KnownProviders:   []string{"claude", "codex"},
	}
}
