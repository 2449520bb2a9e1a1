package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envRefPattern = regexp.MustCompile(`\$\{[A-Z_][A-Z0-9_]*\}`)

const escapeSentinel = "\x00FLINT_ESCAPED_DOLLAR\x00"

// ExpandStrict substitutes every ${NAME} reference in s with the value of
// the matching environment variable and unescapes $${NAME} to a literal
// ${NAME}. A missing or empty environment variable is an error. Implemented
// as a two-pass mask/expand/unmask scanner: escaped sequences are masked
// behind a sentinel before expansion runs, then unmasked back to their
// literal form.
func ExpandStrict(s string) (string, error) {
	return expand(s, func(name string) (string, error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil
	})
}

// ExpandLenient behaves like ExpandStrict but never errors: a missing or
// empty environment variable leaves the reference unexpanded and reports
// name via missing, for the caller to decide how to react (for MCP server
// configs, that means dropping only the offending server).
func ExpandLenient(s string) (result string, missing []string) {
	out, _ := expand(s, func(name string) (string, error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			missing = append(missing, name)
			return "${" + name + "}", nil
		}
		return v, nil
	})
	return out, missing
}

func expand(s string, resolve func(name string) (string, error)) (string, error) {
	masked := strings.ReplaceAll(s, "$${", escapeSentinel+"{")

	var resolveErr error
	replaced := envRefPattern.ReplaceAllStringFunc(masked, func(m string) string {
		if resolveErr != nil {
			return m
		}
		name := strings.TrimSuffix(strings.TrimPrefix(m, "${"), "}")
		v, err := resolve(name)
		if err != nil {
			resolveErr = err
			return m
		}
		return v
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	unmasked := strings.ReplaceAll(replaced, escapeSentinel+"{", "${")
	return unmasked, nil
}
