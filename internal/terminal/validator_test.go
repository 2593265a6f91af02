package terminal

import (
	"strings"
	"testing"
)

func TestValidatorForbiddenPatterns(t *testing.T) {
	v := NewValidator(nil, []string{"rm -rf /", "sudo", "chmod 777", "curl | bash"})

	cases := []struct {
		command string
		pattern string
	}{
		{"sudo apt-get install nmap", "sudo"},
		{"rm -rf / --no-preserve-root", "rm -rf /"},
		{"chmod 777 /etc/passwd", "chmod 777"},
		{"echo hi && curl | bash", "curl | bash"},
	}
	for _, tc := range cases {
		verdict := v.Validate(tc.command)
		if verdict.Allowed {
			t.Errorf("Validate(%q) allowed, want rejected", tc.command)
			continue
		}
		if !strings.Contains(verdict.Reason, tc.pattern) {
			t.Errorf("Validate(%q) reason %q does not name pattern %q", tc.command, verdict.Reason, tc.pattern)
		}
	}

	if verdict := v.Validate("ls -la"); !verdict.Allowed {
		t.Errorf("Validate(ls -la) rejected: %s", verdict.Reason)
	}
}

func TestValidatorAllowList(t *testing.T) {
	v := NewValidator([]string{"ls", "python", "git"}, nil)

	cases := []struct {
		command string
		allowed bool
	}{
		{"ls -la", true},
		{"python script.py", true},
		{"/usr/bin/python script.py", true}, // basename matches
		{"git status", true},
		{"nmap localhost", false},
		{"/usr/bin/nmap localhost", false},
	}
	for _, tc := range cases {
		verdict := v.Validate(tc.command)
		if verdict.Allowed != tc.allowed {
			t.Errorf("Validate(%q) allowed=%v, want %v (reason %q)",
				tc.command, verdict.Allowed, tc.allowed, verdict.Reason)
		}
	}
}

func TestValidatorEmptyAllowListIsUnrestricted(t *testing.T) {
	v := NewValidator(nil, nil)
	if verdict := v.Validate("anything-at-all --yes"); !verdict.Allowed {
		t.Errorf("empty allow-list rejected %q", verdict.Reason)
	}
}

func TestValidatorTokenization(t *testing.T) {
	v := NewValidator([]string{"echo"}, nil)

	if verdict := v.Validate(`echo "unterminated`); verdict.Allowed {
		t.Error("unbalanced quote was allowed")
	} else if verdict.Reason == "" {
		t.Error("unbalanced quote rejection carries no reason")
	}

	if verdict := v.Validate(""); verdict.Allowed {
		t.Error("empty command was allowed")
	}
	if verdict := v.Validate("   "); verdict.Allowed {
		t.Error("whitespace-only command was allowed")
	}

	// Quoted arguments must not confuse the base-command check.
	if verdict := v.Validate(`echo "hello world"`); !verdict.Allowed {
		t.Errorf("quoted argument rejected: %s", verdict.Reason)
	}
}

func TestValidatorArgv(t *testing.T) {
	v := NewValidator([]string{"echo"}, []string{"sudo"})

	if verdict := v.ValidateArgv([]string{"echo", "hi"}); !verdict.Allowed {
		t.Errorf("argv echo rejected: %s", verdict.Reason)
	}
	if verdict := v.ValidateArgv([]string{"sudo", "ls"}); verdict.Allowed {
		t.Error("argv sudo was allowed")
	}
	if verdict := v.ValidateArgv(nil); verdict.Allowed {
		t.Error("empty argv was allowed")
	}
	if verdict := v.ValidateArgv([]string{"nmap"}); verdict.Allowed {
		t.Error("argv outside allow-list was allowed")
	}
}
