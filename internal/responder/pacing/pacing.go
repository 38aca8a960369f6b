// Package pacing implements the director-style responder. It keeps a small
// narrative-tension state machine across turns and advises the turn engine on
// tempo: which story beat comes next, whether to escalate or release tension,
// and what kind of scene element would rebalance the session.
package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/Rene-Zhou/Astinus-sub001/internal/extract"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
)

// Name is the responder's registry key.
const Name = "pacing"

// Metadata keys set on successful envelopes.
const (
	// MetaBeat is the current story beat after this call.
	MetaBeat = "beat"

	// MetaNextBeat is the suggested next beat.
	MetaNextBeat = "next_beat"

	// MetaTension is the current tension level, "1" through "10".
	MetaTension = "tension"

	// MetaDirective is the tempo directive: "hold", "escalate", or
	// "release".
	MetaDirective = "directive"
)

// Directives for [MetaDirective].
const (
	DirectiveHold     = "hold"
	DirectiveEscalate = "escalate"
	DirectiveRelease  = "release"
)

// Beat is a stage of the narrative arc.
type Beat string

// The eight story beats, in natural forward order.
const (
	BeatHook          Beat = "hook"
	BeatSetup         Beat = "setup"
	BeatRisingAction  Beat = "rising_action"
	BeatClimax        Beat = "climax"
	BeatFallingAction Beat = "falling_action"
	BeatResolution    Beat = "resolution"
	BeatTransition    Beat = "transition"
	BeatBreather      Beat = "breather"
)

// forward is the natural beat progression. Breather folds back into
// transition so a rest always leads to the next arc.
var forward = map[Beat]Beat{
	BeatHook:          BeatSetup,
	BeatSetup:         BeatRisingAction,
	BeatRisingAction:  BeatClimax,
	BeatClimax:        BeatFallingAction,
	BeatFallingAction: BeatResolution,
	BeatResolution:    BeatTransition,
	BeatTransition:    BeatHook,
	BeatBreather:      BeatTransition,
}

// validBeat reports whether b names one of the eight beats.
func validBeat(b Beat) bool {
	_, ok := forward[b]
	return ok
}

// Tuning constants for the state machine.
const (
	// ratioSmoothing is the exponential-moving-average factor applied to
	// the action/dialogue ratio each turn.
	ratioSmoothing = 0.2

	// maxRecentBeats bounds the beat history.
	maxRecentBeats = 10

	// lingerTurns is how long a beat may run before the heuristic pushes
	// the story forward.
	lingerTurns = 10

	// highTension and highTensionTurns define sustained high tension that
	// triggers a release suggestion.
	highTension      = 8
	highTensionTurns = 5

	// lowTension is the floor below which a mature session gets an
	// escalation suggestion.
	lowTension = 2

	// ratioHigh and ratioLow are the action/dialogue extremes that trigger
	// a corrective recommended element.
	ratioHigh = 0.8
	ratioLow  = 0.2

	// maxTensionDelta bounds a single model-suggested tension change.
	maxTensionDelta = 3
)

// State is the narrative-tension state the responder carries across turns.
type State struct {
	// Beat is the current story beat.
	Beat Beat

	// Tension is the current tension level in [1, 10].
	Tension int

	// TurnsInBeat counts turns spent in the current beat.
	TurnsInBeat int

	// ActionDialogueRatio tracks the recent balance of player input kinds:
	// 0 is all dialogue, 1 is all action.
	ActionDialogueRatio float64

	// RecentBeats is the bounded history of beats already passed through.
	RecentBeats []Beat

	// tensionHighTurns counts consecutive turns at or above highTension.
	tensionHighTurns int
}

// NextBeat returns the natural next beat from s: forward progression, except
// that a resolution under high tension leads into a breather.
func (s State) NextBeat() Beat {
	if s.Beat == BeatResolution && s.Tension > 5 {
		return BeatBreather
	}
	return forward[s.Beat]
}

// analysis is the structured shape the model must return.
type analysis struct {
	SuggestedBeat Beat   `json:"suggested_beat"`
	Directive     string `json:"directive"`
	TensionDelta  int    `json:"tension_delta"`
	Advice        string `json:"advice"`
}

// Responder is the pacing director.
//
// Input slice fields read: Action, Kind, TurnCount, SceneSummary.
// Process is safe for concurrent use; calls are serialised so the state
// machine advances one turn at a time.
type Responder struct {
	provider llm.Provider

	mu    sync.Mutex
	state State
}

// Compile-time interface check.
var _ responder.Responder = (*Responder)(nil)

// New creates a pacing responder starting at the hook beat with mid-low
// tension.
func New(provider llm.Provider) *Responder {
	return &Responder{
		provider: provider,
		state: State{
			Beat:                BeatHook,
			Tension:             3,
			ActionDialogueRatio: 0.5,
		},
	}
}

// Name implements [responder.Responder].
func (*Responder) Name() string { return Name }

// Snapshot returns a copy of the current narrative state.
func (p *Responder) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.RecentBeats = append([]Beat(nil), s.RecentBeats...)
	return s
}

// Process advances the state machine one turn and returns pacing advice. The
// model-driven analysis is best-effort: when the model fails or returns
// garbage the responder degrades to a deterministic heuristic instead of
// failing the envelope.
func (p *Responder) Process(ctx context.Context, in responder.Slice) responder.Envelope {
	return responder.Run(ctx, Name, func(ctx context.Context) (responder.Envelope, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.state.TurnsInBeat++
		p.updateRatio(in.Kind)

		adv, err := p.analyze(ctx, in)
		if err != nil {
			slog.Debug("pacing analysis failed, using heuristic",
				"beat", p.state.Beat, "err", err)
			adv = p.heuristic(in.TurnCount)
		}
		p.apply(adv)

		var content strings.Builder
		content.WriteString(adv.Advice)
		if adv.RecommendedElement != "" {
			if content.Len() > 0 {
				content.WriteString(" ")
			}
			content.WriteString(adv.RecommendedElement)
		}

		return responder.Envelope{
			Content: content.String(),
			Metadata: map[string]string{
				MetaBeat:      string(p.state.Beat),
				MetaNextBeat:  string(adv.NextBeat),
				MetaTension:   strconv.Itoa(p.state.Tension),
				MetaDirective: adv.Directive,
			},
		}, nil
	})
}

// advice is the internal outcome of a turn's analysis, whichever path
// produced it.
type advice struct {
	NextBeat           Beat
	Directive          string
	TensionDelta       int
	Advice             string
	RecommendedElement string
}

// updateRatio folds the input kind into the action/dialogue moving average.
// Exploration input leaves the ratio untouched.
func (p *Responder) updateRatio(kind string) {
	var target float64
	switch kind {
	case responder.KindDialogue:
		target = 0
	case responder.KindAction:
		target = 1
	default:
		return
	}
	p.state.ActionDialogueRatio = ratioSmoothing*target + (1-ratioSmoothing)*p.state.ActionDialogueRatio
}

// analyze asks the model for a pacing read of the current turn.
func (p *Responder) analyze(ctx context.Context, in responder.Slice) (advice, error) {
	req := BuildPrompt(p.state, in)
	resp, err := p.provider.Complete(ctx, req)
	if err != nil {
		return advice{}, fmt.Errorf("pacing: complete: %w", err)
	}

	var a analysis
	if err := extract.ExtractInto(resp.Content, &a); err != nil {
		return advice{}, fmt.Errorf("pacing: %w", err)
	}
	if !validBeat(a.SuggestedBeat) {
		return advice{}, fmt.Errorf("pacing: model suggested unknown beat %q", a.SuggestedBeat)
	}

	delta := a.TensionDelta
	if delta > maxTensionDelta {
		delta = maxTensionDelta
	}
	if delta < -maxTensionDelta {
		delta = -maxTensionDelta
	}
	directive := a.Directive
	switch directive {
	case DirectiveHold, DirectiveEscalate, DirectiveRelease:
	default:
		directive = DirectiveHold
	}
	return advice{
		NextBeat:     a.SuggestedBeat,
		Directive:    directive,
		TensionDelta: delta,
		Advice:       a.Advice,
	}, nil
}

// heuristic is the deterministic fallback used when the model analysis is
// unavailable.
func (p *Responder) heuristic(turnCount int) advice {
	s := p.state
	adv := advice{
		NextBeat:  s.Beat,
		Directive: DirectiveHold,
	}

	switch {
	case s.TurnsInBeat > lingerTurns:
		adv.NextBeat = s.NextBeat()
		adv.Directive = DirectiveEscalate
		adv.Advice = fmt.Sprintf("The %s has run long; move the story into the %s.",
			beatLabel(s.Beat), beatLabel(adv.NextBeat))
		adv.TensionDelta = 1
	case s.Tension >= highTension && s.tensionHighTurns > highTensionTurns:
		adv.NextBeat = s.NextBeat()
		adv.Directive = DirectiveRelease
		adv.Advice = "Tension has been peaking for a while; give the players a moment of relief."
		adv.TensionDelta = -2
	case s.Tension <= lowTension && turnCount > lingerTurns:
		adv.Directive = DirectiveEscalate
		adv.Advice = "The session has gone quiet; introduce a complication or raise the stakes."
		adv.TensionDelta = 1
	default:
		adv.Advice = "Keep the current pace."
	}

	if s.ActionDialogueRatio > ratioHigh {
		adv.RecommendedElement = "Consider a conversational scene to balance the recent action."
	} else if s.ActionDialogueRatio < ratioLow {
		adv.RecommendedElement = "Consider a physical obstacle or action set piece to balance the recent dialogue."
	}
	return adv
}

// apply folds the advice into the state: tension is adjusted and clamped,
// beat transitions are recorded in the bounded history.
func (p *Responder) apply(adv advice) {
	p.state.Tension = clampTension(p.state.Tension + adv.TensionDelta)

	if p.state.Tension >= highTension {
		p.state.tensionHighTurns++
	} else {
		p.state.tensionHighTurns = 0
	}

	if adv.NextBeat != p.state.Beat && validBeat(adv.NextBeat) {
		p.state.RecentBeats = append(p.state.RecentBeats, p.state.Beat)
		if len(p.state.RecentBeats) > maxRecentBeats {
			p.state.RecentBeats = p.state.RecentBeats[len(p.state.RecentBeats)-maxRecentBeats:]
		}
		p.state.Beat = adv.NextBeat
		p.state.TurnsInBeat = 0
	}
}

// clampTension bounds n to [1, 10].
func clampTension(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// beatLabel renders a beat for prose.
func beatLabel(b Beat) string {
	return strings.ReplaceAll(string(b), "_", " ")
}

// BuildPrompt constructs the pacing-analysis request from the current state
// and input slice. It is a pure function of its arguments.
func BuildPrompt(s State, in responder.Slice) llm.CompletionRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Current beat: %s (turn %d in this beat)\n", s.Beat, s.TurnsInBeat)
	fmt.Fprintf(&b, "Tension: %d/10\n", s.Tension)
	fmt.Fprintf(&b, "Action/dialogue balance: %.2f (0 = all dialogue, 1 = all action)\n", s.ActionDialogueRatio)
	fmt.Fprintf(&b, "Session turn: %d\n", in.TurnCount)
	fmt.Fprintf(&b, "Player input kind: %s\n", in.Kind)
	if in.SceneSummary != "" {
		fmt.Fprintf(&b, "Scene: %s\n", in.SceneSummary)
	}
	fmt.Fprintf(&b, "Player input: %s\n", in.Action)

	return llm.CompletionRequest{
		SystemPrompt: pacingSystemPrompt,
		Messages:     []llm.Message{llm.User(b.String())},
	}
}

const pacingSystemPrompt = `You are the pacing director for a narrative tabletop game.
Given the current story beat and tension, judge how the scene's tempo should
develop. The beats, in natural order, are: hook, setup, rising_action,
climax, falling_action, resolution, transition, breather.

Respond with a single JSON object and nothing else:
{
  "suggested_beat": "<one of the beats above>",
  "directive": "<hold | escalate | release>",
  "tension_delta": <integer between -3 and 3>,
  "advice": "<one sentence of pacing advice for the narrator>"
}`
