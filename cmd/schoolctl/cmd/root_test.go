package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/crypto"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPasswordHash(t *testing.T) {
	t.Setenv("PASSWORD_MEMORY_KB", "8192")
	t.Setenv("PASSWORD_TIME", "1")
	t.Setenv("PASSWORD_PARALLELISM", "1")

	out, err := run(t, "hunter22\n", "password", "hash")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hash := strings.TrimSpace(out)
	if !strings.HasPrefix(hash, "$argon2id$") || !crypto.VerifyPassword("hunter22", hash) {
		t.Fatalf("unexpected hash %q", hash)
	}

	if _, err := run(t, "", "password", "hash"); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestTokenInspect(t *testing.T) {
	t.Setenv("SESSION_ISSUER", "ctl-test")
	codec, err := auth.NewCodec("ctl-secret", "ctl-test", time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, _, err := codec.Encode(auth.Session{UserID: 7, Role: auth.RoleSchoolAdmin, Name: "Sam"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := run(t, "", "token", "inspect", "--secret", "ctl-secret", token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var session auth.Session
	if err := json.Unmarshal([]byte(out), &session); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if session.UserID != 7 || session.Role != auth.RoleSchoolAdmin {
		t.Fatalf("unexpected session: %+v", session)
	}

	if _, err := run(t, "", "token", "inspect", "--secret", "other-secret", token); err == nil {
		t.Fatalf("expected rejection with the wrong secret")
	}
}

func TestUsersCreateValidatesBeforeConnecting(t *testing.T) {
	_, err := run(t, "", "users", "create", "--email", "x@school.test", "--role", "janitor", "--name", "X", "--password", "password1")
	if err == nil || !strings.Contains(err.Error(), "invalid_role") {
		t.Fatalf("expected invalid_role, got %v", err)
	}
}
