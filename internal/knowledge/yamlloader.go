package knowledge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// packFile is the top-level structure of a knowledge pack YAML file.
//
// Example:
//
//	pack:
//	  id: manor-mystery
//	  default_language: zh
//	locations:
//	  - id: study
//	    region: manor
//	snippets:
//	  - uid: 1
//	    keys: ["书房"]
//	    content: {zh: "书桌的暗格里藏着一封信。"}
type packFile struct {
	Pack      packMeta    `yaml:"pack"`
	Locations []*Location `yaml:"locations"`
	NPCs      []*NPC      `yaml:"npcs"`
	Snippets  []*Snippet  `yaml:"snippets"`
}

// packMeta holds top-level metadata for a pack file.
type packMeta struct {
	ID              string `yaml:"id"`
	DefaultLanguage string `yaml:"default_language"`
}

// LoadPackFile reads and parses a knowledge pack YAML file from disk.
func LoadPackFile(path string) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open pack file %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadPackFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse pack file %q: %w", path, err)
	}
	return p, nil
}

// LoadPackFromReader parses pack YAML from an [io.Reader] and validates the
// result. The reader is consumed entirely; closing it is the caller's
// responsibility.
func LoadPackFromReader(r io.Reader) (*Pack, error) {
	var pf packFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("knowledge: decode pack yaml: %w", err)
	}

	p := &Pack{
		ID:              pf.Pack.ID,
		DefaultLanguage: pf.Pack.DefaultLanguage,
		Snippets:        pf.Snippets,
		Locations:       make(map[string]*Location, len(pf.Locations)),
		NPCs:            make(map[string]*NPC, len(pf.NPCs)),
	}
	if p.DefaultLanguage == "" {
		p.DefaultLanguage = "en"
	}
	for _, s := range p.Snippets {
		if s.Visibility == "" {
			s.Visibility = VisibilityBasic
		}
	}
	for _, loc := range pf.Locations {
		if _, ok := p.Locations[loc.ID]; ok {
			return nil, fmt.Errorf("knowledge: duplicate location id %q", loc.ID)
		}
		p.Locations[loc.ID] = loc
	}
	for _, npc := range pf.NPCs {
		if _, ok := p.NPCs[npc.ID]; ok {
			return nil, fmt.Errorf("knowledge: duplicate npc id %q", npc.ID)
		}
		p.NPCs[npc.ID] = npc
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DiscoverPacks lists the pack ids available under dir. A pack id is the base
// name of every "<id>.yaml" or "<id>.yml" file in the directory.
func DiscoverPacks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read pack dir %q: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		ids = append(ids, e.Name()[:len(e.Name())-len(ext)])
	}
	return ids, nil
}
