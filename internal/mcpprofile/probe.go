package mcpprofile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/escalona/flint/internal/config"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Probe performs a best-effort, non-fatal connectivity check of every
// stdio or HTTP MCP server in a composed set, logging (never failing
// startup on) any server that cannot be reached. Flint's gateway never
// proxies tool calls through these connections itself (the agent child
// does), so Probe exists purely to surface a broken server definition at
// load time instead of silently handing it to the agent.
func Probe(ctx context.Context, servers map[string]config.MCPServerConfig, timeout time.Duration) map[string]error {
	results := make(map[string]error, len(servers))
	for alias, cfg := range servers {
		results[alias] = probeOne(ctx, alias, cfg, timeout)
	}
	return results
}

func probeOne(ctx context.Context, alias string, cfg config.MCPServerConfig, timeout time.Duration) error {
	command, _ := cfg["command"].(string)
	url, _ := cfg["url"].(string)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		c         *mcpclient.Client
		err       error
		isStdio   bool
	)
	switch {
	case command != "":
		isStdio = true
		var args []string
		if rawArgs, ok := cfg["args"].([]any); ok {
			for _, a := range rawArgs {
				if s, ok := a.(string); ok {
					args = append(args, s)
				}
			}
		}
		c, err = mcpclient.NewStdioMCPClient(command, nil, args...)
	case url != "":
		c, err = mcpclient.NewSSEMCPClient(url)
	default:
		return fmt.Errorf("mcp server %q: neither command nor url configured", alias)
	}
	if err != nil {
		return fmt.Errorf("mcp server %q: construct client: %w", alias, err)
	}
	defer c.Close()

	// Stdio transports auto-start; SSE/streamable-http need an explicit
	// Start call.
	if !isStdio {
		if err := c.Start(probeCtx); err != nil {
			slog.Warn("mcpprofile: probe failed to start transport", "server", alias, "error", err)
			return err
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "flint", Version: "1.0.0"}

	if _, err := c.Initialize(probeCtx, initReq); err != nil {
		slog.Warn("mcpprofile: probe failed", "server", alias, "error", err)
		return err
	}
	return nil
}
