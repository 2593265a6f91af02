package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the codedesk server.
type Config struct {
	Host   string
	Port   int
	APIKey string // empty disables authentication

	// Auth
	JWTSecret string // secret for session-scoped WebSocket tokens; derived from APIKey when empty

	// Workspace
	WorkspaceDir   string   // root directory for file operations and default command cwd
	ProtectedPaths []string // prefixes the delete endpoint refuses to touch

	// Terminal
	TerminalMaxOutput         int      // max captured output per stream, in characters
	TerminalTimeout           int      // one-shot execution bound, seconds
	TerminalAllowedCommands   []string // allow-list of base commands; empty = unrestricted
	TerminalForbiddenPatterns []string // substrings that block a command outright
	TerminalShell             string   // default interactive shell
	TerminalPTY               bool     // run interactive sessions on a pseudo-terminal
	TerminalReadWait          time.Duration
	MaxSessions               int // cap on concurrent interactive sessions and stored chat sessions
	SessionTTL                time.Duration

	// Model service
	ModelURL     string // base URL of the inference service; empty = not configured
	ModelTimeout time.Duration

	// Conversation history
	HistoryBackend     string // "memory", "redis" or "postgres"
	RedisURL           string
	DatabaseURL        string // PostgreSQL connection string
	MaxContextMessages int    // messages of context handed to the model

	// Audit and events
	AuditDB string // SQLite path for the audit log; empty disables auditing
	NATSURL string // NATS server URL for event publishing; empty disables
}

// DefaultAllowedCommands is the allow-list applied when
// CODEDESK_TERMINAL_ALLOWED_COMMANDS is not set. Setting the variable to an
// empty string removes the restriction entirely.
var DefaultAllowedCommands = []string{
	"ls", "pwd", "cd", "cat", "echo", "grep", "find",
	"python", "pip", "npm", "node", "git", "docker",
}

// DefaultForbiddenPatterns blocks the obvious destructive invocations. This
// is advisory filtering, not a sandbox.
var DefaultForbiddenPatterns = []string{
	"rm -rf /", "sudo", "chmod 777", "curl | bash",
}

// DefaultProtectedPaths are path prefixes the file delete endpoint refuses.
var DefaultProtectedPaths = []string{
	"/etc", "/usr", "/bin", "/sbin", "/boot", "/sys", "/proc",
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	workspace, err := os.Getwd()
	if err != nil {
		workspace = "/workspace"
	}

	cfg := &Config{
		Host:   envOrDefault("CODEDESK_HOST", "0.0.0.0"),
		Port:   8000,
		APIKey: os.Getenv("CODEDESK_API_KEY"),

		JWTSecret: os.Getenv("CODEDESK_JWT_SECRET"),

		WorkspaceDir:   envOrDefault("CODEDESK_WORKSPACE_DIR", workspace),
		ProtectedPaths: envOrDefaultList("CODEDESK_PROTECTED_PATHS", DefaultProtectedPaths),

		TerminalMaxOutput:         envOrDefaultInt("CODEDESK_TERMINAL_MAX_OUTPUT", 10000),
		TerminalTimeout:           envOrDefaultInt("CODEDESK_TERMINAL_TIMEOUT", 30),
		TerminalAllowedCommands:   envOrDefaultList("CODEDESK_TERMINAL_ALLOWED_COMMANDS", DefaultAllowedCommands),
		TerminalForbiddenPatterns: envOrDefaultList("CODEDESK_TERMINAL_FORBIDDEN_PATTERNS", DefaultForbiddenPatterns),
		TerminalShell:             envOrDefault("CODEDESK_TERMINAL_SHELL", "/bin/bash"),
		TerminalPTY:               envOrDefaultBool("CODEDESK_TERMINAL_PTY", false),
		TerminalReadWait:          time.Duration(envOrDefaultInt("CODEDESK_TERMINAL_READ_WAIT_MS", 100)) * time.Millisecond,
		MaxSessions:               envOrDefaultInt("CODEDESK_MAX_SESSIONS", 50),
		SessionTTL:                time.Duration(envOrDefaultInt("CODEDESK_SESSION_TTL_HOURS", 24)) * time.Hour,

		ModelURL:     os.Getenv("CODEDESK_MODEL_URL"),
		ModelTimeout: time.Duration(envOrDefaultInt("CODEDESK_MODEL_TIMEOUT", 120)) * time.Second,

		HistoryBackend:     envOrDefault("CODEDESK_HISTORY_BACKEND", "memory"),
		RedisURL:           os.Getenv("CODEDESK_REDIS_URL"),
		DatabaseURL:        envOrDefault("CODEDESK_DATABASE_URL", os.Getenv("DATABASE_URL")),
		MaxContextMessages: envOrDefaultInt("CODEDESK_MAX_CONTEXT_MESSAGES", 20),

		AuditDB: os.Getenv("CODEDESK_AUDIT_DB"),
		NATSURL: os.Getenv("CODEDESK_NATS_URL"),
	}

	if portStr := os.Getenv("CODEDESK_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CODEDESK_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	switch cfg.HistoryBackend {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("invalid CODEDESK_HISTORY_BACKEND %q (want memory, redis or postgres)", cfg.HistoryBackend)
	}
	if cfg.HistoryBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("CODEDESK_HISTORY_BACKEND=redis requires CODEDESK_REDIS_URL")
	}
	if cfg.HistoryBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("CODEDESK_HISTORY_BACKEND=postgres requires CODEDESK_DATABASE_URL")
	}

	// WebSocket tokens are signed with the API key unless a dedicated
	// secret is configured.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.APIKey
	}

	return cfg, nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

// envOrDefaultList parses a comma-separated list. An unset variable yields
// the fallback; a variable explicitly set to "" yields an empty list, which
// for the allow-list means unrestricted.
func envOrDefaultList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
