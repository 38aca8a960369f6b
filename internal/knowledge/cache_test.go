package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePack(t *testing.T, dir, id, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write pack %s: %v", id, err)
	}
}

func TestCacheLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePack(t, dir, "manor-mystery", samplePackYAML)
	c := NewCache(dir)

	p1, err := c.Load("manor-mystery")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p2, err := c.Load("manor-mystery")
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if p1 != p2 {
		t.Error("Load() should return the same snapshot on repeat calls")
	}
}

func TestCacheLoadErrors(t *testing.T) {
	t.Parallel()
	c := NewCache(t.TempDir())

	if _, err := c.Load(""); err == nil {
		t.Error("Load(\"\") error = nil, want non-nil")
	}
	if _, err := c.Load("missing"); err == nil {
		t.Error("Load(missing) error = nil, want non-nil")
	}
}

func TestCacheLoadIDMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePack(t, dir, "renamed", samplePackYAML) // file declares manor-mystery
	c := NewCache(dir)

	_, err := c.Load("renamed")
	if err == nil || !strings.Contains(err.Error(), "declares id") {
		t.Errorf("Load() error = %v, want id mismatch", err)
	}
}

func TestCacheReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePack(t, dir, "manor-mystery", samplePackYAML)
	c := NewCache(dir)

	old, err := c.Load("manor-mystery")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Rewrite the file with one snippet fewer and reload.
	trimmed := strings.Replace(samplePackYAML, `  - uid: 2
    keys: [manor]
    constant: true
    visibility: detailed
    order: -1
    content: {zh: "庄园笼罩在雾中。"}
`, "", 1)
	writePack(t, dir, "manor-mystery", trimmed)

	fresh, err := c.Reload("manor-mystery")
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if fresh == old {
		t.Error("Reload() should replace the snapshot")
	}
	if len(fresh.Snippets) != 1 {
		t.Errorf("reloaded snippets = %d, want 1", len(fresh.Snippets))
	}
	// The old snapshot is untouched for sessions still holding it.
	if len(old.Snippets) != 2 {
		t.Errorf("old snapshot snippets = %d, want 2", len(old.Snippets))
	}

	got, err := c.Load("manor-mystery")
	if err != nil {
		t.Fatalf("Load() after reload error = %v", err)
	}
	if got != fresh {
		t.Error("Load() after Reload() should return the fresh snapshot")
	}
}

func TestCacheListAvailable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePack(t, dir, "manor-mystery", samplePackYAML)
	c := NewCache(dir)

	ids, err := c.ListAvailable()
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "manor-mystery" {
		t.Errorf("ListAvailable() = %v, want [manor-mystery]", ids)
	}
}
