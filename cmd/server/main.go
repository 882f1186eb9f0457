package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-overlay-server/internal/api"
	"agent-overlay-server/internal/browser"
	"agent-overlay-server/internal/codes"
	"agent-overlay-server/internal/config"
	mcpserver "agent-overlay-server/internal/mcp"
	"agent-overlay-server/internal/overlay"
	"agent-overlay-server/internal/panel"
	"agent-overlay-server/internal/profile"
	"agent-overlay-server/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "Path to an explicit config file (overrides workspace config)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	noWorkspace := flag.Bool("no-workspace", false, "Skip .agentoverlay workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Use this directory as the workspace root")
	initWorkspace := flag.Bool("init", false, "Create a .agentoverlay workspace in the current directory and exit")
	flag.Parse()

	if *initWorkspace {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		if err := config.InitWorkspace(cwd); err != nil {
			log.Fatalf("failed to init workspace: %v", err)
		}
		log.Printf("initialized workspace in %s", cwd)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wsDir != "" {
		log.Printf("using workspace at %s", wsDir)
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && *ssePort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	var rec *recorder.Recorder
	if cfg.Server.TraceDir != "" {
		rec, err = recorder.New(cfg.Server.TraceDir)
		if err != nil {
			log.Printf("trace recording disabled: %v", err)
		} else if err := rec.Start("host"); err != nil {
			log.Printf("trace recording disabled: %v", err)
			rec = nil
		}
		defer rec.Close()
	}

	hub := panel.NewHub()
	intents := mcpserver.NewIntentBuffer(0)
	sink := overlay.MultiSink(hub, intents)

	sessionManager := browser.NewSessionManager(cfg.Browser, cfg.Overlay, sink, rec)
	if cfg.Browser.AutoStart {
		if err := sessionManager.Start(ctx); err != nil {
			log.Fatalf("failed to initialize Rod session manager: %v", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use MCP tools to launch/attach later")
	}
	defer sessionManager.Shutdown(context.Background())

	if cfg.API.Port != 0 {
		profiles, err := profile.Open(cfg.API.ProfileDB)
		if err != nil {
			log.Fatalf("failed to open profile store: %v", err)
		}
		defer profiles.Close()

		mailbox := codes.NewMailbox(cfg.API.GetCodeTTL())
		go sweepCodes(ctx, mailbox, cfg.API.GetCodeTTL())

		apiServer := api.New(cfg.API, profiles, mailbox, hub)
		go func() {
			log.Printf("starting HTTP API on port %d", cfg.API.Port)
			if err := apiServer.Start(); err != nil {
				log.Printf("HTTP API exited: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	server, err := mcpserver.NewServer(cfg, sessionManager, intents)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting overlay host MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting overlay host MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

// sweepCodes periodically drops expired verification codes.
func sweepCodes(ctx context.Context, mailbox *codes.Mailbox, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mailbox.Sweep()
		}
	}
}
