package knowledge

import (
	"strings"
	"testing"
)

func validPack() *Pack {
	return &Pack{
		ID:              "manor-mystery",
		DefaultLanguage: "zh",
		Snippets: []*Snippet{
			{UID: 1, Keys: []string{"书房"}, Content: map[string]string{"zh": "书桌的暗格里藏着一封信。"}},
			{UID: 2, Keys: []string{"cellar"}, Content: map[string]string{"en": "The cellar door is always locked."}},
		},
		Locations: map[string]*Location{
			"study":  {ID: "study", Region: "manor"},
			"cellar": {ID: "cellar", Region: "manor"},
		},
		NPCs: map[string]*NPC{
			"butler": {ID: "butler", Name: "Graves", Locations: []string{"study"}},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	if err := validPack().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Pack)
		wantMsg string
	}{
		{
			name:    "empty pack id",
			mutate:  func(p *Pack) { p.ID = "" },
			wantMsg: "pack id",
		},
		{
			name:    "duplicate uid",
			mutate:  func(p *Pack) { p.Snippets[1].UID = 1 },
			wantMsg: "duplicate snippet uid",
		},
		{
			name:    "empty content",
			mutate:  func(p *Pack) { p.Snippets[0].Content = nil },
			wantMsg: "no content",
		},
		{
			name:    "invalid visibility",
			mutate:  func(p *Pack) { p.Snippets[0].Visibility = "occult" },
			wantMsg: "invalid visibility",
		},
		{
			name:    "snippet references unknown location",
			mutate:  func(p *Pack) { p.Snippets[0].ApplicableLocations = []string{"attic"} },
			wantMsg: "unknown location",
		},
		{
			name:    "npc references unknown location",
			mutate:  func(p *Pack) { p.NPCs["butler"].Locations = []string{"attic"} },
			wantMsg: "unknown location",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPack()
			tt.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want non-nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestSnippetText(t *testing.T) {
	t.Parallel()
	s := &Snippet{Content: map[string]string{"en": "locked door"}}
	if got := s.Text("en"); got != "locked door" {
		t.Errorf("Text(en) = %q, want %q", got, "locked door")
	}
	// Missing language falls back to any available one.
	if got := s.Text("zh"); got != "locked door" {
		t.Errorf("Text(zh) = %q, want fallback %q", got, "locked door")
	}
	empty := &Snippet{}
	if got := empty.Text("en"); got != "" {
		t.Errorf("Text() on empty content = %q, want empty", got)
	}
}

func TestNPCPresentAt(t *testing.T) {
	t.Parallel()
	scoped := &NPC{ID: "butler", Locations: []string{"study"}}
	if !scoped.PresentAt("study") {
		t.Error("PresentAt(study) = false, want true")
	}
	if scoped.PresentAt("cellar") {
		t.Error("PresentAt(cellar) = true, want false")
	}

	// No locations means present everywhere.
	roaming := &NPC{ID: "ghost"}
	if !roaming.PresentAt("cellar") {
		t.Error("unscoped NPC should be present everywhere")
	}
}

func TestSnippetByUID(t *testing.T) {
	t.Parallel()
	p := validPack()
	if s := p.SnippetByUID(2); s == nil || s.UID != 2 {
		t.Errorf("SnippetByUID(2) = %+v, want snippet 2", s)
	}
	if s := p.SnippetByUID(99); s != nil {
		t.Errorf("SnippetByUID(99) = %+v, want nil", s)
	}
}
