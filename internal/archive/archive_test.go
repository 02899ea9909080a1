package archive

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

var keyPattern = regexp.MustCompile(`^reports/10-0-0-5/20260502T080405\.123456Z-[0-9a-f]{8}\.pdf$`)

func TestKey(t *testing.T) {
	at := time.Date(2026, 5, 2, 10, 4, 5, 123456000, time.FixedZone("CEST", 2*3600))
	got := Key("10-0-0-5", ".pdf", at)
	if !keyPattern.MatchString(got) {
		t.Fatalf("Key() = %q, want match for %s", got, keyPattern)
	}
}

func TestKeySameInstantDiffers(t *testing.T) {
	at := time.Date(2026, 5, 2, 8, 4, 5, 123456000, time.UTC)
	first, second := Key("10-0-0-5", "pdf", at), Key("10-0-0-5", "pdf", at)
	if first == second {
		t.Fatalf("expected distinct keys for the same instant, both %q", first)
	}
}

func TestFileArchivePut(t *testing.T) {
	root := t.TempDir()
	a, err := NewFileArchive(root)
	if err != nil {
		t.Fatalf("NewFileArchive() error = %v", err)
	}

	key := "reports/app/20260502T080405Z.html"
	if err := a.Put(context.Background(), key, []byte("<h1>app</h1>"), "text/html"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(root, "reports", "app", "20260502T080405Z.html"))
	if err != nil {
		t.Fatalf("read archived report: %v", err)
	}
	if string(raw) != "<h1>app</h1>" {
		t.Errorf("unexpected contents %q", raw)
	}

	// overwriting the same key replaces the file
	if err := a.Put(context.Background(), key, []byte("v2"), "text/html"); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	raw, _ = os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	if string(raw) != "v2" {
		t.Errorf("expected overwrite, got %q", raw)
	}
}

func TestFileArchiveRejectsEscapingKeys(t *testing.T) {
	a, err := NewFileArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileArchive() error = %v", err)
	}
	for _, key := range []string{"../outside.html", "/etc/passwd", ".", ""} {
		if err := a.Put(context.Background(), key, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q) expected error", key)
		}
	}
}

func TestNewFileArchiveRequiresRoot(t *testing.T) {
	if _, err := NewFileArchive("  "); err == nil {
		t.Fatal("expected error for blank root")
	}
}
