// Package gateway composes thread identity, the thread store, the
// per-thread queue, session lifecycle, the runtime registry, and the event
// translator into the single handleMessage control flow.
package gateway

import (
	"strings"

	"github.com/escalona/flint/internal/config"
	"github.com/escalona/flint/internal/runtime"
)

// IsCodexShaped reports whether provider uses the Codex wire dialect:
// baseInstructions/developerInstructions, dotted mcp_servers config keys,
// and approvalPolicy/sandbox fields.
func IsCodexShaped(provider string) bool {
	return strings.EqualFold(provider, "codex")
}

// wireMapper implements runtime.WireMapper against the provider-variant
// rules below. Its method table is exhaustive by construction:
// every branch goes through IsCodexShaped, so adding a provider never
// silently falls into the wrong dialect.
type wireMapper struct{}

// NewWireMapper returns the runtime.WireMapper Flint wires into the
// runtime registry.
func NewWireMapper() runtime.WireMapper {
	return wireMapper{}
}

func (wireMapper) BuildThreadStart(provider string, desired runtime.Desired, mcpServers map[string]any, codexDefaults map[string]any) map[string]any {
	params := map[string]any{}
	if desired.Model != "" && !desired.ForceDefaultModel {
		params["model"] = desired.Model
	}

	if IsCodexShaped(provider) {
		cfg := map[string]any{}
		flattenMCPServersInto(cfg, mcpServers)
		if len(cfg) > 0 {
			params["config"] = cfg
		}
		if codexDefaults != nil {
			if v, ok := codexDefaults["approvalPolicy"]; ok {
				params["approvalPolicy"] = v
			}
			if v, ok := codexDefaults["sandbox"]; ok {
				params["sandbox"] = v
			}
		}
		return params
	}

	if len(mcpServers) > 0 {
		params["mcpServers"] = mcpServers
	}
	return params
}

func (wireMapper) BuildThreadResume(provider string, providerThreadID string, desired runtime.Desired, mcpServers map[string]any) map[string]any {
	params := map[string]any{"threadId": providerThreadID}
	if desired.Model != "" && !desired.ForceDefaultModel {
		params["model"] = desired.Model
	}

	if IsCodexShaped(provider) {
		cfg := map[string]any{}
		flattenMCPServersInto(cfg, mcpServers)
		if len(cfg) > 0 {
			params["config"] = cfg
		}
		return params
	}

	if len(mcpServers) > 0 {
		params["mcpServers"] = mcpServers
	}
	return params
}

// flattenMCPServersInto writes mcp_servers.{alias}.{key} dotted entries
// into dst, applying the Codex HTTP/stdio field-name mapping.
func flattenMCPServersInto(dst map[string]any, servers map[string]any) {
	for alias, raw := range servers {
		server, ok := raw.(config.MCPServerConfig)
		if !ok {
			if m, ok2 := raw.(map[string]any); ok2 {
				server = config.MCPServerConfig(m)
			} else {
				continue
			}
		}
		prefix := "mcp_servers." + alias + "."

		if _, isHTTP := server["url"]; isHTTP {
			for key, val := range server {
				switch key {
				case "headers":
					dst[prefix+"http_headers"] = val
				case "envHeaders":
					dst[prefix+"env_http_headers"] = val
				case "bearerTokenEnvVar":
					dst[prefix+"bearer_token_env_var"] = val
				default:
					dst[prefix+key] = val
				}
			}
			continue
		}

		for _, key := range []string{"command", "args", "env", "cwd"} {
			if val, ok := server[key]; ok {
				dst[prefix+key] = val
			}
		}
	}
}

// modelFallbackTriggers are the substrings treated as evidence that an
// agent error is about the requested model specifically, not some other
// failure. The trigger is heuristic.
var modelFallbackTriggers = []string{"unknown model", "invalid model", "not supported", "unsupported"}

// isModelFallbackError reports whether err's message clearly references
// model: the lowercased text must contain both the model id and one of
// modelFallbackTriggers.
func isModelFallbackError(err error, model string) bool {
	if err == nil || model == "" {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, strings.ToLower(model)) {
		return false
	}
	for _, t := range modelFallbackTriggers {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

// CodexDefaults extracts the settings-level Codex approval/sandbox
// defaults in the shape BuildThreadStart expects.
func CodexDefaults(cfg config.CodexConfig) map[string]any {
	out := map[string]any{}
	if cfg.ApprovalPolicy != "" {
		out["approvalPolicy"] = cfg.ApprovalPolicy
	}
	if cfg.SandboxMode != "" {
		out["sandbox"] = cfg.SandboxMode
	}
	return out
}
