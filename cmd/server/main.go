package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codedesk/codedesk/internal/api"
	"github.com/codedesk/codedesk/internal/audit"
	"github.com/codedesk/codedesk/internal/auth"
	"github.com/codedesk/codedesk/internal/config"
	"github.com/codedesk/codedesk/internal/events"
	"github.com/codedesk/codedesk/internal/history"
	"github.com/codedesk/codedesk/internal/model"
	"github.com/codedesk/codedesk/internal/terminal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// Audit log (optional)
	var auditLog *audit.Log
	if cfg.AuditDB != "" {
		auditLog, err = audit.Open(cfg.AuditDB)
		if err != nil {
			log.Fatalf("failed to open audit log: %v", err)
		}
		defer auditLog.Close()
		log.Printf("codedesk: audit log at %s", cfg.AuditDB)
	}

	// Event publisher, fed from the audit log's outbox
	if cfg.NATSURL != "" {
		if auditLog == nil {
			log.Println("codedesk: CODEDESK_NATS_URL set without CODEDESK_AUDIT_DB, event publishing disabled")
		} else {
			publisher, err := events.NewPublisher(cfg.NATSURL, auditLog)
			if err != nil {
				log.Printf("codedesk: event publisher not available: %v (continuing without)", err)
			} else {
				publisher.Start()
				defer publisher.Stop()
				log.Println("codedesk: event publisher started")
			}
		}
	}

	// Conversation history
	store, err := history.New(ctx, history.Options{
		Backend:     cfg.HistoryBackend,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		MaxMessages: cfg.MaxContextMessages * 2,
		TTL:         cfg.SessionTTL,
		MaxSessions: cfg.MaxSessions,
	})
	if err != nil {
		log.Fatalf("failed to initialize history store: %v", err)
	}
	defer store.Close()
	log.Printf("codedesk: conversation history backend: %s", cfg.HistoryBackend)

	// Model service client
	modelClient := model.NewClient(cfg.ModelURL, cfg.ModelTimeout)
	if modelClient.Configured() {
		log.Printf("codedesk: model service at %s", cfg.ModelURL)
	} else {
		log.Println("codedesk: no model service configured, chat answers 503")
	}

	// Terminal subsystem
	registry := terminal.NewRegistry()
	validator := terminal.NewValidator(cfg.TerminalAllowedCommands, cfg.TerminalForbiddenPatterns)

	execOpts := terminal.ExecutorOptions{
		WorkspaceDir:   cfg.WorkspaceDir,
		DefaultTimeout: time.Duration(cfg.TerminalTimeout) * time.Second,
		MaxOutput:      cfg.TerminalMaxOutput,
	}
	mgrOpts := terminal.ManagerOptions{
		Shell:        cfg.TerminalShell,
		WorkspaceDir: cfg.WorkspaceDir,
		ReadWait:     cfg.TerminalReadWait,
		UsePTY:       cfg.TerminalPTY,
		MaxSessions:  cfg.MaxSessions,
	}
	// Assigned conditionally so a disabled audit log stays a nil interface.
	if auditLog != nil {
		execOpts.Logger = auditLog
		mgrOpts.Logger = auditLog
	}

	executor := terminal.NewExecutor(registry, validator, execOpts)
	sessions := terminal.NewManager(registry, mgrOpts)

	server := api.NewServer(api.Deps{
		Config:   cfg,
		Executor: executor,
		Sessions: sessions,
		Registry: registry,
		Model:    modelClient,
		History:  store,
		Tokens:   auth.NewTokenIssuer(cfg.JWTSecret),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := cfg.Addr()
	log.Printf("codedesk: starting server on %s (workspace=%s)", addr, cfg.WorkspaceDir)
	if cfg.APIKey == "" {
		log.Println("codedesk: no API key configured, authentication disabled")
	}

	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("codedesk: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down server: %v", err)
	}
	sessions.Cleanup()
}
