package session

import (
	"strings"
)

// ParsedCommand is the result of applying the reset-command parser to a
// normalized, trimmed inbound text.
type ParsedCommand struct {
	Trigger          string
	ProviderOverride string
	ModelOverride    string
	NextText         string
}

// ParseResetCommand recognizes a leading reset trigger ("/new", "/reset",
// ...) and, if present, an optional "provider/model" or bare
// provider/model override that follows it. providerHints is the ordered
// set of known provider names used to disambiguate the "provider/model"
// and bare-provider forms. greeting is used as NextText when the trigger
// consumes the whole message.
func ParseResetCommand(text string, triggers []string, providerHints []string, greeting string) (ParsedCommand, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedCommand{}, false
	}

	fields := strings.Fields(trimmed)
	first := fields[0]

	triggered := false
	for _, t := range triggers {
		if first == t {
			triggered = true
			break
		}
	}
	if !triggered {
		return ParsedCommand{}, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, first))

	cmd := ParsedCommand{Trigger: first}

	if first == "/new" && rest != "" {
		restFields := strings.Fields(rest)
		candidate := restFields[0]
		remainder := strings.TrimSpace(strings.TrimPrefix(rest, candidate))

		consumed := false
		if idx := strings.Index(candidate, "/"); idx >= 0 {
			left, right := candidate[:idx], candidate[idx+1:]
			if provider, ok := matchProvider(left, providerHints); ok {
				cmd.ProviderOverride = provider
				if right != "" {
					cmd.ModelOverride = right
				}
				consumed = true
			} else {
				cmd.ModelOverride = candidate
				consumed = true
			}
		} else if provider, ok := matchProvider(candidate, providerHints); ok {
			cmd.ProviderOverride = provider
			consumed = true
		} else if remainder != "" && looksModelLike(candidate) {
			cmd.ModelOverride = candidate
			consumed = true
		}

		if consumed {
			rest = remainder
		}
	}

	cmd.NextText = rest
	if cmd.NextText == "" {
		cmd.NextText = greeting
	}
	return cmd, true
}

// matchProvider matches token against hints by case-insensitive equality,
// or (failing that) by a unique case-insensitive prefix.
func matchProvider(token string, hints []string) (string, bool) {
	lower := strings.ToLower(token)
	for _, h := range hints {
		if strings.ToLower(h) == lower {
			return h, true
		}
	}
	var match string
	count := 0
	for _, h := range hints {
		if strings.HasPrefix(strings.ToLower(h), lower) {
			match = h
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return "", false
}

// looksModelLike is a heuristic: true if s contains a digit or any of
// "-_:./".
func looksModelLike(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
		switch r {
		case '-', '_', ':', '.', '/':
			return true
		}
	}
	return false
}
