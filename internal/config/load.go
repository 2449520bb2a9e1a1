package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/escalona/flint/internal/thread"
	"github.com/titanous/json5"
)

// Load reads the settings file at path (JSON5, tolerant of comments and
// trailing commas), falling back to Default() if the file does not exist,
// then applies environment-variable overrides: Default() -> read ->
// json5.Unmarshal -> applyEnvOverrides().
func Load(path string) (*Settings, error) {
	settings := Default()

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(settings)
			return settings, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json5.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(settings)
	return settings, nil
}

// ExpandHome expands a leading "~" to the user's home directory, used for
// workspace and storage paths.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return home + path[1:]
	}
	return path
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// applyEnvOverrides overlays the environment variables named below onto
// settings in place, field by field.
func applyEnvOverrides(s *Settings) {
	envInt("PORT", &s.Port)
	envStr("FLINT_GATEWAY_PROVIDER", &s.Provider)
	envStr("FLINT_GATEWAY_MODEL", &s.Model)
	if v := os.Getenv("FLINT_GATEWAY_ROUTING_MODE"); v != "" {
		s.RoutingMode = thread.RoutingMode(v)
	}
	envStr("FLINT_GATEWAY_STORE_PATH", &s.StorePath)
	envInt("FLINT_GATEWAY_IDEMPOTENCY_TTL_MS", &s.IdempotencyTTLMs)

	if v := os.Getenv("FLINT_GATEWAY_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			minutes := n / 60
			if minutes < 1 {
				minutes = 1
			}
			s.Session.Reset.IdleMinutes = &minutes
		}
	}

	if v := os.Getenv("FLINT_GATEWAY_IDENTITY_LINKS"); v != "" {
		links, err := parseIdentityLinksJSON(v)
		if err == nil {
			s.IdentityLinks = links
		}
	}

	if v := os.Getenv("FLINT_GATEWAY_MEMORY_ENABLED"); v != "" {
		s.MemoryEnabled = v == "true" || v == "1"
	}

	envStr("FLINT_GATEWAY_BEARER_TOKEN", &s.BearerToken)
	envStr("FLINT_GATEWAY_APPROVAL_DECISION", &s.ApprovalDecision)

	if v := os.Getenv("FLINT_GATEWAY_KNOWN_PROVIDERS"); v != "" {
		var providers []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
		s.KnownProviders = providers
	}
}

func parseIdentityLinksJSON(raw string) (map[string][]string, error) {
	var out map[string][]string
	if err := json5.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IdentityLinksFrom converts the settings' raw map into a thread.IdentityLinks,
// preserving the key iteration stability the caller supplied via
// orderedKeys (map iteration order in Go is randomized, so callers that
// need deterministic ordering must supply the desired key order; settings
// loaded from JSON do not have a natural order, so the default order here
// is simply the order keys are visited, which a caller needing strict
// determinism should pin via orderedKeys).
func IdentityLinksFrom(raw map[string][]string, orderedKeys []string) thread.IdentityLinks {
	if len(orderedKeys) == 0 {
		for k := range raw {
			orderedKeys = append(orderedKeys, k)
		}
	}
	entries := make([]thread.IdentityLinkEntry, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		tokens, ok := raw[k]
		if !ok {
			continue
		}
		entries = append(entries, thread.IdentityLinkEntry{Canonical: k, Tokens: tokens})
	}
	return thread.NewIdentityLinks(entries...)
}
