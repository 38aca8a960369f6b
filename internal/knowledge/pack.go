// Package knowledge defines the immutable world-knowledge data model: packs
// of background snippets, locations, and NPC definitions.
//
// A [Pack] is loaded once per pack id and treated as read-only for the process
// lifetime — reloading replaces the snapshot rather than mutating it, so a
// pack is always safe for concurrent reads across sessions.
package knowledge

import "fmt"

// Visibility controls when a snippet may be surfaced to the player.
type Visibility string

const (
	// VisibilityBasic snippets are eligible for normal retrieval.
	VisibilityBasic Visibility = "basic"

	// VisibilityDetailed snippets are withheld from normal retrieval and only
	// surface when explicitly requested (e.g., a successful investigation
	// check), or when marked constant.
	VisibilityDetailed Visibility = "detailed"
)

// IsValid reports whether v is a recognised visibility level.
func (v Visibility) IsValid() bool {
	return v == VisibilityBasic || v == VisibilityDetailed
}

// Snippet is an atomic piece of background/world knowledge retrievable by the
// hybrid ranker. Snippets are immutable after pack load.
type Snippet struct {
	// UID is the snippet's unique id within its pack.
	UID int `yaml:"uid"`

	// Keys are the primary trigger terms for keyword retrieval.
	Keys []string `yaml:"keys"`

	// SecondaryKeys are additional trigger terms, matched with the same
	// weight as Keys.
	SecondaryKeys []string `yaml:"secondary_keys"`

	// Content maps a language code (e.g. "zh", "en") to the snippet text in
	// that language.
	Content map[string]string `yaml:"content"`

	// Visibility controls retrieval eligibility. Defaults to basic.
	Visibility Visibility `yaml:"visibility"`

	// Constant marks snippets that are always included in results that pass
	// the location/region filters, regardless of the query.
	Constant bool `yaml:"constant"`

	// ApplicableLocations, when non-empty, restricts the snippet to sessions
	// whose current location is in this set.
	ApplicableLocations []string `yaml:"applicable_locations"`

	// ApplicableRegions, when non-empty, restricts the snippet to sessions
	// whose current region is in this set.
	ApplicableRegions []string `yaml:"applicable_regions"`

	// Order is the ascending tie-break applied after score sorting.
	Order int `yaml:"order"`
}

// Text returns the snippet content in lang, falling back to any available
// language when lang is missing. Returns "" for an empty content map.
func (s *Snippet) Text(lang string) string {
	if t, ok := s.Content[lang]; ok {
		return t
	}
	for _, t := range s.Content {
		return t
	}
	return ""
}

// Location is a place the player can occupy during a session.
type Location struct {
	// ID is the stable location identifier referenced by snippets.
	ID string `yaml:"id"`

	// Region is the id of the region this location belongs to.
	Region string `yaml:"region"`

	// Name maps language code to the display name.
	Name map[string]string `yaml:"name"`

	// Description maps language code to the narrative description.
	Description map[string]string `yaml:"description"`
}

// NPC describes a character present in the pack's world, used to build voice
// responders. The persona fields are injected verbatim into system prompts.
type NPC struct {
	// ID is the stable NPC identifier. Voice responders register under
	// "npc_<id>".
	ID string `yaml:"id"`

	// Name is the NPC's in-world name.
	Name string `yaml:"name"`

	// Persona is a free-text description of the NPC's character, speech
	// patterns, quirks, and motivations.
	Persona string `yaml:"persona"`

	// SecretKnowledge lists facts the NPC knows but will not volunteer.
	// Injected into the system prompt under confidentiality instructions.
	SecretKnowledge []string `yaml:"secret_knowledge"`

	// BehaviorRules are hard constraints on the NPC's responses (e.g.,
	// "Never break character").
	BehaviorRules []string `yaml:"behavior_rules"`

	// Locations lists location ids where this NPC is present. Empty means
	// present everywhere.
	Locations []string `yaml:"locations"`
}

// PresentAt reports whether the NPC is present at the given location id.
func (n *NPC) PresentAt(locationID string) bool {
	if len(n.Locations) == 0 {
		return true
	}
	for _, l := range n.Locations {
		if l == locationID {
			return true
		}
	}
	return false
}

// Pack is an immutable snapshot of one knowledge pack.
type Pack struct {
	// ID is the pack identifier (also the search corpus id).
	ID string

	// DefaultLanguage is the language used when a query's language cannot be
	// detected. Defaults to "en".
	DefaultLanguage string

	// Snippets holds every snippet in the pack, in file order.
	Snippets []*Snippet

	// Locations holds every location, keyed by id.
	Locations map[string]*Location

	// NPCs holds every NPC, keyed by id.
	NPCs map[string]*NPC
}

// Validate checks internal consistency: unique snippet UIDs, non-empty
// content, known visibility values, and resolvable location references.
func (p *Pack) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("knowledge: pack id must not be empty")
	}

	seen := make(map[int]bool, len(p.Snippets))
	for _, s := range p.Snippets {
		if seen[s.UID] {
			return fmt.Errorf("knowledge: pack %q: duplicate snippet uid %d", p.ID, s.UID)
		}
		seen[s.UID] = true

		if len(s.Content) == 0 {
			return fmt.Errorf("knowledge: pack %q: snippet %d has no content", p.ID, s.UID)
		}
		if s.Visibility != "" && !s.Visibility.IsValid() {
			return fmt.Errorf("knowledge: pack %q: snippet %d has invalid visibility %q", p.ID, s.UID, s.Visibility)
		}
		for _, loc := range s.ApplicableLocations {
			if _, ok := p.Locations[loc]; !ok {
				return fmt.Errorf("knowledge: pack %q: snippet %d references unknown location %q", p.ID, s.UID, loc)
			}
		}
	}

	for id, npc := range p.NPCs {
		for _, loc := range npc.Locations {
			if _, ok := p.Locations[loc]; !ok {
				return fmt.Errorf("knowledge: pack %q: npc %q references unknown location %q", p.ID, id, loc)
			}
		}
	}

	return nil
}

// SnippetByUID returns the snippet with the given uid, or nil when absent.
func (p *Pack) SnippetByUID(uid int) *Snippet {
	for _, s := range p.Snippets {
		if s.UID == uid {
			return s
		}
	}
	return nil
}
