package knowledge

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const samplePackYAML = `
pack:
  id: manor-mystery
  default_language: zh
locations:
  - id: study
    region: manor
    name: {zh: "书房", en: "The Study"}
  - id: cellar
    region: manor
npcs:
  - id: butler
    name: Graves
    persona: "An impeccably formal butler."
    secret_knowledge:
      - "The master changed his will last week."
    locations: [study]
snippets:
  - uid: 1
    keys: ["书房", "study"]
    content: {zh: "书桌的暗格里藏着一封信。", en: "A letter is hidden in the desk."}
  - uid: 2
    keys: [manor]
    constant: true
    visibility: detailed
    order: -1
    content: {zh: "庄园笼罩在雾中。"}
`

func TestLoadPackFromReader(t *testing.T) {
	t.Parallel()
	p, err := LoadPackFromReader(strings.NewReader(samplePackYAML))
	if err != nil {
		t.Fatalf("LoadPackFromReader() error = %v", err)
	}
	if p.ID != "manor-mystery" {
		t.Errorf("ID = %q, want %q", p.ID, "manor-mystery")
	}
	if p.DefaultLanguage != "zh" {
		t.Errorf("DefaultLanguage = %q, want %q", p.DefaultLanguage, "zh")
	}
	if len(p.Snippets) != 2 {
		t.Fatalf("len(Snippets) = %d, want 2", len(p.Snippets))
	}
	// Visibility defaults to basic when omitted.
	if p.Snippets[0].Visibility != VisibilityBasic {
		t.Errorf("snippet 1 visibility = %q, want %q", p.Snippets[0].Visibility, VisibilityBasic)
	}
	if !p.Snippets[1].Constant || p.Snippets[1].Order != -1 {
		t.Errorf("snippet 2 = %+v, want constant with order -1", p.Snippets[1])
	}
	if p.Locations["study"].Region != "manor" {
		t.Errorf("study region = %q, want %q", p.Locations["study"].Region, "manor")
	}
	if p.NPCs["butler"].Name != "Graves" {
		t.Errorf("butler name = %q, want %q", p.NPCs["butler"].Name, "Graves")
	}
}

func TestLoadPackFromReader_UnknownKeyRejected(t *testing.T) {
	t.Parallel()
	yaml := `
pack:
  id: p
snippets:
  - uid: 1
    keyz: [typo]
    content: {en: text}
`
	_, err := LoadPackFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown snippet key, got nil")
	}
}

func TestLoadPackFromReader_DuplicateLocation(t *testing.T) {
	t.Parallel()
	yaml := `
pack:
  id: p
locations:
  - id: study
  - id: study
snippets:
  - uid: 1
    content: {en: text}
`
	_, err := LoadPackFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "duplicate location") {
		t.Errorf("error = %v, want duplicate location", err)
	}
}

func TestLoadPackFromReader_DefaultLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
pack:
  id: p
snippets:
  - uid: 1
    content: {en: text}
`
	p, err := LoadPackFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadPackFromReader() error = %v", err)
	}
	if p.DefaultLanguage != "en" {
		t.Errorf("DefaultLanguage = %q, want default %q", p.DefaultLanguage, "en")
	}
}

func TestDiscoverPacks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"alpha.yaml", "beta.yml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ids, err := DiscoverPacks(dir)
	if err != nil {
		t.Fatalf("DiscoverPacks() error = %v", err)
	}
	slices.Sort(ids)
	want := []string{"alpha", "beta"}
	if !slices.Equal(ids, want) {
		t.Errorf("DiscoverPacks() = %v, want %v", ids, want)
	}
}
