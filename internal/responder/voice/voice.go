// Package voice implements per-NPC character responders. Each instance wraps
// one NPC persona and produces in-character dialogue for the turn engine,
// keeping a bounded conversation history across the session.
package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	know "github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
)

// NamePrefix is prepended to the NPC id to form the registry key, so scene
// composition can address voice responders without knowing their type.
const NamePrefix = "npc_"

// Metadata keys set on successful envelopes.
const (
	// MetaNPCID is the id of the speaking NPC.
	MetaNPCID = "npc_id"

	// MetaNPCName is the in-world name of the speaking NPC.
	MetaNPCName = "npc_name"
)

// maxHistory bounds the retained conversation history per NPC.
const maxHistory = 20

// Responder speaks as a single NPC.
//
// Input slice fields read: Action, SceneSummary, CharacterSummary, Language.
// Process is safe for concurrent use; calls are serialised to keep the
// conversation history coherent.
type Responder struct {
	provider llm.Provider
	npc      *know.NPC

	mu      sync.Mutex
	history []llm.Message
}

// Compile-time interface check.
var _ responder.Responder = (*Responder)(nil)

// New creates a voice responder for the given NPC.
func New(provider llm.Provider, npc *know.NPC) *Responder {
	return &Responder{provider: provider, npc: npc}
}

// Name implements [responder.Responder]: "npc_<id>".
func (v *Responder) Name() string { return NamePrefix + v.npc.ID }

// NPC returns the persona this responder speaks as.
func (v *Responder) NPC() *know.NPC { return v.npc }

// Process produces one in-character reply to the player's action.
func (v *Responder) Process(ctx context.Context, in responder.Slice) responder.Envelope {
	return responder.Run(ctx, v.Name(), func(ctx context.Context) (responder.Envelope, error) {
		if strings.TrimSpace(in.Action) == "" {
			return responder.Envelope{}, responder.ErrNoActionProvided
		}

		v.mu.Lock()
		defer v.mu.Unlock()

		userMsg := llm.User(in.Action)
		msgs := make([]llm.Message, len(v.history), len(v.history)+1)
		copy(msgs, v.history)
		msgs = append(msgs, userMsg)

		resp, err := v.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: BuildSystemPrompt(v.npc, in),
			Messages:     msgs,
		})
		if err != nil {
			return responder.Envelope{}, fmt.Errorf("voice %s: complete: %w", v.npc.ID, err)
		}

		v.history = append(v.history, userMsg, llm.Message{
			Role:    llm.RoleAssistant,
			Content: resp.Content,
			Name:    v.npc.Name,
		})
		if len(v.history) > maxHistory {
			v.history = v.history[len(v.history)-maxHistory:]
		}

		return responder.Envelope{
			Content: resp.Content,
			Metadata: map[string]string{
				MetaNPCID:   v.npc.ID,
				MetaNPCName: v.npc.Name,
			},
		}, nil
	})
}

// BuildSystemPrompt renders the NPC persona, confidentiality instructions,
// and behavior rules into a system prompt. It is a pure function of its
// arguments.
func BuildSystemPrompt(npc *know.NPC, in responder.Slice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a character in a narrative tabletop game.\n", npc.Name)
	if npc.Persona != "" {
		b.WriteString(npc.Persona)
		b.WriteString("\n")
	}
	if len(npc.SecretKnowledge) > 0 {
		b.WriteString("\nYou know the following, but never volunteer it. Reveal a piece only when the player earns it in conversation:\n")
		for _, s := range npc.SecretKnowledge {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	if len(npc.BehaviorRules) > 0 {
		b.WriteString("\nHard rules:\n")
		for _, r := range npc.BehaviorRules {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	if in.SceneSummary != "" {
		b.WriteString("\nCurrent scene: ")
		b.WriteString(in.SceneSummary)
		b.WriteString("\n")
	}
	if in.CharacterSummary != "" {
		b.WriteString("The player's character: ")
		b.WriteString(in.CharacterSummary)
		b.WriteString("\n")
	}
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	fmt.Fprintf(&b, "\nStay in character. Respond in the language with code %q, in at most three sentences, speech only.", lang)
	return b.String()
}
