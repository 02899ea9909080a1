package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("scan")
	if !strings.HasPrefix(id, "scan_") {
		t.Fatalf("expected scan_ prefix, got %q", id)
	}
	if len(id) != len("scan_")+32 {
		t.Fatalf("unexpected id length %d for %q", len(id), id)
	}
	if NewID("scan") == id {
		t.Fatal("expected unique ids")
	}
}

func TestNewIDWithoutPrefix(t *testing.T) {
	if id := NewID(""); len(id) != 32 || strings.Contains(id, "_") {
		t.Fatalf("unexpected id %q", id)
	}
}
