// Package gating implements the rule-style responder that decides whether a
// player action requires an externally resolved check, and if so emits the
// check specification for the player to roll.
package gating

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Rene-Zhou/Astinus-sub001/internal/extract"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
)

// Name is the responder's registry key.
const Name = "gating"

// Metadata keys set on successful envelopes.
const (
	// MetaNeedsCheck is "true" or "false".
	MetaNeedsCheck = "needs_check"

	// MetaCheckRequest holds the JSON-encoded [responder.CheckSpec] when
	// MetaNeedsCheck is "true".
	MetaCheckRequest = "check_request"
)

// formulaRe matches the accepted dice notation: NdM with an optional
// keep-highest/keep-lowest suffix and an optional flat modifier
// (e.g. "1d20", "3d6kl2", "2d10+3").
var formulaRe = regexp.MustCompile(`^[1-9]\d{0,2}d[1-9]\d{0,2}(?:k[hl][1-9]\d?)?(?:[+-]\d{1,3})?$`)

// result is the structured shape the model must return.
type result struct {
	NeedsCheck   bool                 `json:"needs_check"`
	Reasoning    string               `json:"reasoning"`
	CheckRequest *responder.CheckSpec `json:"check_request"`
}

// Responder adjudicates whether an action needs a check.
//
// Input slice fields read: Action, CharacterSummary, ActiveTags,
// PlayerArgument, Language.
type Responder struct {
	provider llm.Provider
}

// Compile-time interface check.
var _ responder.Responder = (*Responder)(nil)

// New creates a gating responder backed by the given text-generation
// provider.
func New(provider llm.Provider) *Responder {
	return &Responder{provider: provider}
}

// Name implements [responder.Responder].
func (*Responder) Name() string { return Name }

// Process adjudicates the action in the slice. The envelope's content is the
// model's reasoning; MetaNeedsCheck is always set, and MetaCheckRequest
// carries the JSON-encoded check spec when a check is required.
func (g *Responder) Process(ctx context.Context, in responder.Slice) responder.Envelope {
	return responder.Run(ctx, Name, func(ctx context.Context) (responder.Envelope, error) {
		if strings.TrimSpace(in.Action) == "" {
			return responder.Envelope{}, responder.ErrNoActionProvided
		}

		req := BuildPrompt(in)
		resp, err := g.provider.Complete(ctx, req)
		if err != nil {
			return responder.Envelope{}, fmt.Errorf("gating: complete: %w", err)
		}

		var res result
		if err := extract.ExtractInto(resp.Content, &res); err != nil {
			return responder.Envelope{}, fmt.Errorf("gating: %w", err)
		}

		env := responder.Envelope{
			Content:  res.Reasoning,
			Metadata: map[string]string{MetaNeedsCheck: "false"},
		}
		if !res.NeedsCheck {
			return env, nil
		}

		if err := validateCheckSpec(res.CheckRequest); err != nil {
			return responder.Envelope{}, err
		}
		spec, err := json.Marshal(res.CheckRequest)
		if err != nil {
			return responder.Envelope{}, fmt.Errorf("gating: encode check spec: %w", err)
		}
		env.Metadata[MetaNeedsCheck] = "true"
		env.Metadata[MetaCheckRequest] = string(spec)
		return env, nil
	})
}

// validateCheckSpec rejects a check request that is missing or does not
// satisfy the CheckSpec shape. A model that claims a check is needed must
// supply a usable spec; the responder never downgrades to "no check".
func validateCheckSpec(spec *responder.CheckSpec) error {
	if spec == nil {
		return &responder.ValidationError{Field: "check_request", Reason: "needs_check is true but no check request was provided"}
	}
	if strings.TrimSpace(spec.Intention) == "" {
		return &responder.ValidationError{Field: "intention", Reason: "must not be empty"}
	}
	if !formulaRe.MatchString(spec.Formula) {
		return &responder.ValidationError{Field: "formula", Reason: fmt.Sprintf("%q is not valid dice notation", spec.Formula)}
	}
	return nil
}

// BuildPrompt constructs the adjudication request from the input slice. It is
// a pure function of the slice.
func BuildPrompt(in responder.Slice) llm.CompletionRequest {
	var b strings.Builder
	b.WriteString("Player action: ")
	b.WriteString(in.Action)
	b.WriteString("\n")
	if in.CharacterSummary != "" {
		b.WriteString("Character: ")
		b.WriteString(in.CharacterSummary)
		b.WriteString("\n")
	}
	if len(in.ActiveTags) > 0 {
		b.WriteString("Active tags: ")
		b.WriteString(strings.Join(in.ActiveTags, ", "))
		b.WriteString("\n")
	}
	if in.PlayerArgument != "" {
		b.WriteString("Player's argument: ")
		b.WriteString(in.PlayerArgument)
		b.WriteString("\n")
	}

	return llm.CompletionRequest{
		SystemPrompt: systemPrompt(in.Language),
		Messages:     []llm.Message{llm.User(b.String())},
	}
}

// systemPrompt returns the fixed adjudication instructions. lang selects the
// language the check instructions should be written in.
func systemPrompt(lang string) string {
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf(`You are the rules adjudicator for a narrative tabletop game.
Decide whether the player's action has a meaningful chance of failure and
therefore requires a dice check. Trivial, safe, or purely conversational
actions never need a check.

Respond with a single JSON object and nothing else:
{
  "needs_check": <bool>,
  "reasoning": "<one or two sentences>",
  "check_request": {
    "intention": "<what the player is trying to achieve>",
    "traits": ["<influencing character traits>"],
    "tags": ["<influencing situational tags>"],
    "formula": "<dice notation, e.g. 1d20 or 3d6kl2>",
    "instructions": {%q: "<player-facing roll instructions>"}
  }
}
Omit "check_request" entirely when needs_check is false.`, lang)
}
