// Package responder defines the uniform contract every specialized responder
// implements, along with the envelope, context-slice, and check types shared
// by the turn engine.
//
// A responder accepts a narrow [Slice] of session state and produces an
// [Envelope]. No error or panic ever escapes a responder call: the [Run]
// helper converts every failure into an unsuccessful envelope carrying the
// responder name and an error-kind tag in its metadata.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// syncTimeout bounds [ProcessSync] when no caller-supplied deadline exists.
const syncTimeout = 2 * time.Minute

// Envelope is the uniform response produced by every responder.
//
// When Success is false, Content is conventionally empty and Err describes
// the failure. Metadata keys are documented per responder; callers must not
// rely on the metadata shape being uniform across responders.
type Envelope struct {
	// Content is the responder's textual contribution to the turn.
	Content string

	// Metadata is the responder's side-channel key→value map.
	Metadata map[string]string

	// Success reports whether the responder completed normally.
	Success bool

	// Err is the failure description when Success is false.
	Err string
}

// Metadata keys set by [Run] on failure envelopes.
const (
	// MetaResponder is the name of the responder that produced the envelope.
	MetaResponder = "responder"

	// MetaErrorKind is the taxonomy class of the failure (see errors.go).
	MetaErrorKind = "error_kind"
)

// CheckSpec describes an externally resolved randomized sub-task (a dice
// roll) that gates the outcome of a player action.
type CheckSpec struct {
	// Intention is what the player is trying to achieve.
	Intention string `json:"intention"`

	// Traits are the character traits that influence the roll.
	Traits []string `json:"traits,omitempty"`

	// Tags are the situational tags that influence the roll.
	Tags []string `json:"tags,omitempty"`

	// Formula is the dice notation to roll (e.g. "3d6kl2", "1d20+5").
	Formula string `json:"formula"`

	// Instructions maps a language code to player-facing roll instructions.
	Instructions map[string]string `json:"instructions,omitempty"`
}

// CheckResult is the externally supplied outcome of a pending check.
type CheckResult struct {
	// Total is the numeric roll result.
	Total int `json:"total"`

	// Outcome is the adjudicated tier: "success", "failure",
	// "critical_success", or "critical_failure".
	Outcome string `json:"outcome"`
}

// Outcome tiers for [CheckResult.Outcome].
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeCriticalSuccess = "critical_success"
	OutcomeCriticalFailure = "critical_failure"
)

// Slice is the context slice passed to a responder: a copy of only the
// session-state fields that responder needs, never the live turn state.
//
// Each responder documents which fields it reads; unrelated fields are left
// zero by the engine when building the slice.
type Slice struct {
	// Action is the player's natural-language action text.
	Action string

	// PlayerArgument is an optional free-text argument the player attached
	// to the action (e.g. a justification for a contested claim).
	PlayerArgument string

	// CharacterSummary is a one-paragraph summary of the acting character.
	CharacterSummary string

	// ActiveTags are the situational tags currently applied to the character.
	ActiveTags []string

	// Query is the retrieval query for knowledge responders.
	Query string

	// Location is the current location id, when known.
	Location string

	// Region is the current region id, when known.
	Region string

	// Language is the session's narration language code.
	Language string

	// SceneSummary is a short description of the current scene for voice
	// responders.
	SceneSummary string

	// Kind classifies the player input: "action", "dialogue", or
	// "exploration". Used by the pacing responder.
	Kind string

	// TurnCount is the number of completed turns in the session.
	TurnCount int

	// CheckOutcome carries the resolved check when a turn is resumed after
	// an external roll; nil otherwise.
	CheckOutcome *CheckResult

	// PendingCheck carries the spec of the check being resolved alongside
	// CheckOutcome; nil otherwise.
	PendingCheck *CheckSpec
}

// Input kinds for [Slice.Kind].
const (
	KindAction      = "action"
	KindDialogue    = "dialogue"
	KindExploration = "exploration"
)

// Responder is the uniform contract for every specialized responder.
//
// Process must never return an error or let a panic escape: all failures are
// converted into an unsuccessful [Envelope] at the boundary (use [Run]).
// A responder must not retain the slice after Process returns and must not
// produce effects outside its own boundary.
type Responder interface {
	// Name returns the responder's stable registry key (e.g. "gating",
	// "knowledge", "pacing", "npc_butler").
	Name() string

	// Process handles one context slice and returns a response envelope.
	Process(ctx context.Context, in Slice) Envelope
}

// Run executes fn inside the responder failure boundary: panics are recovered
// and errors converted into failure envelopes tagged with the responder name
// and error kind. Successful envelopes pass through with MetaResponder set.
func Run(ctx context.Context, name string, fn func(ctx context.Context) (Envelope, error)) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("responder panic recovered",
				"responder", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			env = Failure(name, fmt.Errorf("panic: %v", r))
		}
	}()

	env, err := fn(ctx)
	if err != nil {
		return Failure(name, err)
	}
	if env.Metadata == nil {
		env.Metadata = map[string]string{}
	}
	env.Metadata[MetaResponder] = name
	env.Success = true
	return env
}

// Failure builds the conventional failure envelope for the given responder
// and error: empty content, Success=false, metadata tagged with the
// responder name and the error's taxonomy kind.
func Failure(name string, err error) Envelope {
	return Envelope{
		Success: false,
		Err:     err.Error(),
		Metadata: map[string]string{
			MetaResponder: name,
			MetaErrorKind: KindOf(err),
		},
	}
}

// ProcessSync runs r.Process to completion on a private background context
// with a bounded deadline. It is the synchronous convenience wrapper for
// callers that have no concurrency host (CLIs, tests).
func ProcessSync(r Responder, in Slice) Envelope {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	return r.Process(ctx, in)
}
