package terminal

import (
	"fmt"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Verdict is the outcome of a command policy check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Validator screens command strings against a forbidden-substring list and
// an optional allow-list of base commands. It is advisory defense in depth,
// not a sandbox: a permitted base command can still reach arbitrary code
// through shell metacharacters, which is why the executor also offers a
// shell-free argv entry point.
type Validator struct {
	allowed   map[string]struct{}
	forbidden []string
}

// NewValidator builds a validator. An empty allow-list permits any base
// command; forbidden patterns always apply.
func NewValidator(allowed, forbidden []string) *Validator {
	v := &Validator{forbidden: forbidden}
	if len(allowed) > 0 {
		v.allowed = make(map[string]struct{}, len(allowed))
		for _, cmd := range allowed {
			v.allowed[cmd] = struct{}{}
		}
	}
	return v
}

// Validate checks a raw command string. Forbidden substrings are matched
// exactly and case-sensitively before any parsing, so a command that fails
// to tokenize is still blocked by pattern.
func (v *Validator) Validate(command string) Verdict {
	for _, pat := range v.forbidden {
		if strings.Contains(command, pat) {
			return Verdict{Reason: fmt.Sprintf("forbidden pattern detected: %s", pat)}
		}
	}

	tokens, err := shellwords.Parse(command)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("invalid command format: %v", err)}
	}
	if len(tokens) == 0 {
		return Verdict{Reason: "empty command"}
	}
	return v.checkBase(tokens[0])
}

// ValidateArgv applies the same policy to a pre-tokenized argument vector.
func (v *Validator) ValidateArgv(argv []string) Verdict {
	if len(argv) == 0 {
		return Verdict{Reason: "empty command"}
	}
	joined := strings.Join(argv, " ")
	for _, pat := range v.forbidden {
		if strings.Contains(joined, pat) {
			return Verdict{Reason: fmt.Sprintf("forbidden pattern detected: %s", pat)}
		}
	}
	return v.checkBase(argv[0])
}

// checkBase accepts the base command if the allow-list is empty, or if the
// command or its basename is listed. The basename check permits
// path-qualified invocations like /usr/bin/python.
func (v *Validator) checkBase(base string) Verdict {
	if v.allowed == nil {
		return Verdict{Allowed: true}
	}
	if _, ok := v.allowed[base]; ok {
		return Verdict{Allowed: true}
	}
	if _, ok := v.allowed[filepath.Base(base)]; ok {
		return Verdict{Allowed: true}
	}
	return Verdict{Reason: fmt.Sprintf("command not allowed: %s", base)}
}
