package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", " warn ", "error"} {
		logger, err := newLogger(level)
		if err != nil {
			t.Fatalf("newLogger(%q) error = %v", level, err)
		}
		_ = logger.Sync()
	}
	if _, err := newLogger("loud"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "hash-token"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected %q subcommand, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config flag")
	}
}

func TestHashTokenCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"hash-token", "s3cret"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "$2a$") {
		t.Fatalf("expected bcrypt hash, got %q", out.String())
	}
}
