package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/escalona/flint/internal/acp"
	"github.com/escalona/flint/internal/channel"
	"github.com/escalona/flint/internal/config"
	"github.com/escalona/flint/internal/gateway"
	"github.com/escalona/flint/internal/gatewaytrace"
	"github.com/escalona/flint/internal/httpapi"
	"github.com/escalona/flint/internal/idempotency"
	"github.com/escalona/flint/internal/mcpprofile"
	"github.com/escalona/flint/internal/runtime"
	"github.com/escalona/flint/internal/thread"
)

// mcpProbeTimeout bounds how long startup waits for any single MCP server
// to answer initialize before moving on.
const mcpProbeTimeout = 5 * time.Second

// probeDefaultMCPProfiles composes the configured default profile set and
// probes every server in it, logging (never failing startup on) anything
// unreachable or misconfigured.
func probeDefaultMCPProfiles(settings *config.Settings) {
	if len(settings.DefaultMCPProfileIDs) == 0 {
		return
	}
	composed, err := mcpprofile.Compose(settings.MCPProfiles, settings.DefaultMCPProfileIDs)
	if err != nil {
		slog.Warn("cmd/flint: mcp profile composition failed, skipping startup probe", "error", err)
		return
	}
	for _, w := range composed.Warnings {
		slog.Warn("cmd/flint: mcp profile warning", "detail", w)
	}
	results := mcpprofile.Probe(context.Background(), composed.Servers, mcpProbeTimeout)
	for alias, probeErr := range results {
		if probeErr != nil {
			slog.Warn("cmd/flint: mcp server unreachable at startup", "server", alias, "error", probeErr)
		}
	}
}

// commandSpawner spawns every agent child with the single configured
// command,
// passing the resolved provider through the environment so a multi-provider
// agent binary can dispatch on it.
type commandSpawner struct {
	command   []string
	workspace string
}

func (s commandSpawner) Command(provider string) (command []string, workdir string, env []string, err error) {
	if len(s.command) == 0 {
		return nil, "", nil, fmt.Errorf("cmd/flint: no agentCommand configured")
	}
	env = append(os.Environ(), "FLINT_PROVIDER="+provider)
	return append([]string(nil), s.command...), s.workspace, env, nil
}

func approvalDecisionFrom(raw string) acp.ApprovalDecision {
	if raw == string(acp.ApprovalDecline) {
		return acp.ApprovalDecline
	}
	return acp.ApprovalAccept
}

func runServe() error {
	logLevel := slog.LevelInfo
	if verbose || os.Getenv("FLINT_VERBOSE") != "" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	settings, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("cmd/flint: load config: %w", err)
	}

	shutdownTracing, err := gatewaytrace.Init(context.Background(), Version)
	if err != nil {
		slog.Warn("cmd/flint: tracing disabled, failed to initialize exporter", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("cmd/flint: tracing shutdown failed", "error", err)
		}
	}()

	threadStore, err := thread.NewStore(config.ExpandHome(settings.StorePath))
	if err != nil {
		return fmt.Errorf("cmd/flint: open thread store: %w", err)
	}

	idemStore := idempotency.New(time.Duration(settings.IdempotencyTTLMs) * time.Millisecond)
	queue := runtime.NewQueue()

	probeDefaultMCPProfiles(settings)

	workspace := config.ExpandHome("~/.flint/workspace")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("cmd/flint: create workspace dir: %w", err)
	}
	spawner := commandSpawner{command: settings.AgentCommand, workspace: workspace}
	registry := runtime.NewRegistry(spawner, gateway.NewWireMapper(), "flint", Version, approvalDecisionFrom(settings.ApprovalDecision))
	defer registry.CloseAll()

	identity := config.IdentityLinksFrom(settings.IdentityLinks, nil)
	engine := gateway.NewEngine(settings, threadStore, idemStore, queue, registry, identity, settings.ProviderHints())

	channels := channel.NewRegistry()
	server := httpapi.New(engine, channels, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("flint gateway starting", "version", Version, "port", settings.Port, "provider", settings.Provider)
		return server.ListenAndServe(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("flint gateway shutting down")
		return nil
	})

	return group.Wait()
}
