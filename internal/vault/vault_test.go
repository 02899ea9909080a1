package vault

import (
	"errors"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New("correct horse", "salt-1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sealed, err := v.Seal("admin:Winter2026!@10.0.0.5:ssh")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, "enc:v1:") {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	if strings.Contains(sealed, "Winter2026") {
		t.Fatal("sealed value leaks plaintext")
	}

	again, _ := v.Seal("admin:Winter2026!@10.0.0.5:ssh")
	if again == sealed {
		t.Fatal("expected random nonce to vary output")
	}

	opened, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != "admin:Winter2026!@10.0.0.5:ssh" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	a, _ := New("one", "salt")
	b, _ := New("two", "salt")

	sealed, err := a.Seal("secret")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestPlaintextPassthrough(t *testing.T) {
	v, _ := New("key", "")
	got, err := v.Open("legacy plaintext")
	if err != nil || got != "legacy plaintext" {
		t.Fatalf("Open() = %q, %v", got, err)
	}

	empty, err := v.Seal("")
	if err != nil || empty != "" {
		t.Fatalf("Seal(\"\") = %q, %v", empty, err)
	}
}

func TestNilVault(t *testing.T) {
	var v *Vault
	if v.Enabled() {
		t.Fatal("nil vault must not be enabled")
	}
	got, err := v.Seal("plain")
	if err != nil || got != "plain" {
		t.Fatalf("Seal() = %q, %v", got, err)
	}

	sealer, _ := New("key", "")
	sealed, _ := sealer.Seal("plain")
	if _, err := v.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen without key, got %v", err)
	}
}

func TestNewRequiresPassphrase(t *testing.T) {
	if _, err := New("", "salt"); !errors.Is(err, ErrEmptyPassphrase) {
		t.Fatalf("expected ErrEmptyPassphrase, got %v", err)
	}
}
