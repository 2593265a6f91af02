package auth

import (
	"strings"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.IssueSessionToken("sess-42", time.Minute)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	claims, err := issuer.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken: %v", err)
	}
	if claims.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want sess-42", claims.SessionID)
	}
	if claims.Issuer != "codedesk" {
		t.Errorf("Issuer = %q, want codedesk", claims.Issuer)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a").IssueSessionToken("s1", time.Minute)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	if _, err := NewTokenIssuer("secret-b").ValidateSessionToken(token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestSessionTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	token, err := issuer.IssueSessionToken("s1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}

	_, err = issuer.ValidateSessionToken(token)
	if err == nil {
		t.Fatal("expired token validated")
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("error = %v", err)
	}
}

func TestSessionTokenGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	if _, err := issuer.ValidateSessionToken("not.a.jwt"); err == nil {
		t.Error("garbage token validated")
	}
}
