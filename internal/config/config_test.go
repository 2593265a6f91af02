package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear env to test defaults
	os.Unsetenv("CODEDESK_PORT")
	os.Unsetenv("CODEDESK_API_KEY")
	os.Unsetenv("CODEDESK_TERMINAL_MAX_OUTPUT")
	os.Unsetenv("CODEDESK_TERMINAL_TIMEOUT")
	os.Unsetenv("CODEDESK_TERMINAL_ALLOWED_COMMANDS")
	os.Unsetenv("CODEDESK_HISTORY_BACKEND")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Port)
	}
	if cfg.TerminalMaxOutput != 10000 {
		t.Errorf("expected max output 10000, got %d", cfg.TerminalMaxOutput)
	}
	if cfg.TerminalTimeout != 30 {
		t.Errorf("expected timeout 30, got %d", cfg.TerminalTimeout)
	}
	if cfg.TerminalShell != "/bin/bash" {
		t.Errorf("expected shell /bin/bash, got %s", cfg.TerminalShell)
	}
	if cfg.TerminalReadWait != 100*time.Millisecond {
		t.Errorf("expected read wait 100ms, got %v", cfg.TerminalReadWait)
	}
	if len(cfg.TerminalAllowedCommands) != len(DefaultAllowedCommands) {
		t.Errorf("expected default allow-list (%d entries), got %v",
			len(DefaultAllowedCommands), cfg.TerminalAllowedCommands)
	}
	if cfg.HistoryBackend != "memory" {
		t.Errorf("expected history backend memory, got %s", cfg.HistoryBackend)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("CODEDESK_PORT", "9999")
	os.Setenv("CODEDESK_API_KEY", "test-key")
	os.Setenv("CODEDESK_TERMINAL_TIMEOUT", "5")
	os.Setenv("CODEDESK_TERMINAL_FORBIDDEN_PATTERNS", "mkfs, dd if=")
	defer func() {
		os.Unsetenv("CODEDESK_PORT")
		os.Unsetenv("CODEDESK_API_KEY")
		os.Unsetenv("CODEDESK_TERMINAL_TIMEOUT")
		os.Unsetenv("CODEDESK_TERMINAL_FORBIDDEN_PATTERNS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
	if cfg.JWTSecret != "test-key" {
		t.Errorf("expected JWT secret to fall back to the API key, got %s", cfg.JWTSecret)
	}
	if cfg.TerminalTimeout != 5 {
		t.Errorf("expected timeout 5, got %d", cfg.TerminalTimeout)
	}
	want := []string{"mkfs", "dd if="}
	if len(cfg.TerminalForbiddenPatterns) != 2 ||
		cfg.TerminalForbiddenPatterns[0] != want[0] ||
		cfg.TerminalForbiddenPatterns[1] != want[1] {
		t.Errorf("expected forbidden patterns %v, got %v", want, cfg.TerminalForbiddenPatterns)
	}
}

func TestLoadEmptyAllowListMeansUnrestricted(t *testing.T) {
	os.Setenv("CODEDESK_TERMINAL_ALLOWED_COMMANDS", "")
	defer os.Unsetenv("CODEDESK_TERMINAL_ALLOWED_COMMANDS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.TerminalAllowedCommands) != 0 {
		t.Errorf("expected empty allow-list, got %v", cfg.TerminalAllowedCommands)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	os.Setenv("CODEDESK_PORT", "not-a-number")
	defer os.Unsetenv("CODEDESK_PORT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestLoadInvalidHistoryBackend(t *testing.T) {
	os.Setenv("CODEDESK_HISTORY_BACKEND", "cassandra")
	defer os.Unsetenv("CODEDESK_HISTORY_BACKEND")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown history backend, got nil")
	}
}

func TestLoadRedisBackendRequiresURL(t *testing.T) {
	os.Setenv("CODEDESK_HISTORY_BACKEND", "redis")
	os.Unsetenv("CODEDESK_REDIS_URL")
	defer os.Unsetenv("CODEDESK_HISTORY_BACKEND")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for redis backend without URL, got nil")
	}
}
