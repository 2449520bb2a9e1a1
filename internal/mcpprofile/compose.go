// Package mcpprofile composes named MCP profiles into a single
// alias->config map for a thread. It does not connect to MCP servers
// itself (apart from the startup Probe); it only composes the config the
// agent child will use to connect to them.
package mcpprofile

import (
	"fmt"
	"log/slog"

	"github.com/escalona/flint/internal/config"
)

// ComposeResult is the outcome of composing a set of profile ids.
type ComposeResult struct {
	Servers  map[string]config.MCPServerConfig
	Warnings []string
}

// Compose expands ids depth-first through each profile's Extends list,
// merging server aliases into a single map. A duplicate alias contributed
// by two different profiles is a collision error. A cycle in Extends is
// rejected with a cycle-detected error.
func Compose(profiles map[string]config.MCPProfile, ids []string) (ComposeResult, error) {
	result := ComposeResult{Servers: make(map[string]config.MCPServerConfig)}
	visitedIDs := make(map[string]bool) // ids fully merged already, to dedupe
	path := make(map[string]bool)       // ids on the current DFS path, for cycle detection

	var visit func(id string) error
	visit = func(id string) error {
		if visitedIDs[id] {
			return nil
		}
		if path[id] {
			return fmt.Errorf("mcp profile %q: cycle detected in extends", id)
		}
		profile, ok := profiles[id]
		if !ok {
			return fmt.Errorf("mcp profile %q: not found", id)
		}
		path[id] = true
		for _, parent := range profile.Extends {
			if err := visit(parent); err != nil {
				return err
			}
		}
		for alias, cfg := range profile.Servers {
			if _, exists := result.Servers[alias]; exists {
				return fmt.Errorf("mcp profile %q: alias %q collides with an earlier profile", id, alias)
			}
			resolved, warnings, ok := resolveServerConfig(alias, cfg)
			result.Warnings = append(result.Warnings, warnings...)
			if !ok {
				continue
			}
			result.Servers[alias] = resolved
		}
		delete(path, id)
		visitedIDs[id] = true
		return nil
	}

	for _, id := range dedupeOrdered(ids) {
		if err := visit(id); err != nil {
			return ComposeResult{}, err
		}
	}
	return result, nil
}

// MergeBuiltinMemory adds the built-in memory server config on top of an
// already-composed set, under a non-colliding alias: if "memory" is taken,
// tries "memory_1", "memory_2", etc. It never replaces a user-declared
// alias.
func MergeBuiltinMemory(result ComposeResult, memoryConfig config.MCPServerConfig) ComposeResult {
	alias := "memory"
	for i := 1; ; i++ {
		if _, exists := result.Servers[alias]; !exists {
			break
		}
		alias = fmt.Sprintf("memory_%d", i)
	}
	result.Servers[alias] = memoryConfig
	return result
}

func dedupeOrdered(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// resolveServerConfig expands ${NAME} references in every string value of
// cfg. A missing/empty environment variable aborts only this server: it
// is dropped with a warning, logged here and also returned so callers
// without direct slog wiring can surface it.
func resolveServerConfig(alias string, cfg config.MCPServerConfig) (config.MCPServerConfig, []string, bool) {
	var warnings []string
	var missingAny bool

	resolved := make(config.MCPServerConfig, len(cfg))
	for k, v := range cfg {
		rv, missing := expandValue(v)
		if len(missing) > 0 {
			missingAny = true
			for _, m := range missing {
				msg := fmt.Sprintf("mcp server %q: missing environment variable %s, dropping server", alias, m)
				warnings = append(warnings, msg)
				slog.Warn("mcpprofile: dropping server due to missing env var", "server", alias, "var", m)
			}
		}
		resolved[k] = rv
	}
	if missingAny {
		return nil, warnings, false
	}
	return resolved, warnings, true
}
