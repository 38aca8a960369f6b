// Package orchestrator implements the per-session turn engine: a small state
// machine that routes each player action through the registered responders,
// suspends the turn when a check is required, resumes it when the roll comes
// back, and merges all responder envelopes into one narrated turn response.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	know "github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/observe"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/gating"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/pacing"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/voice"
)

// Phase is the turn engine's state machine phase.
type Phase string

// The four phases of a turn.
const (
	PhaseWaitingInput  Phase = "waiting_input"
	PhaseProcessing    Phase = "processing"
	PhaseAwaitingCheck Phase = "awaiting_check"
	PhaseNarrating     Phase = "narrating"
)

// Turn outcome labels used in metrics.
const (
	outcomeNarrated  = "narrated"
	outcomeSuspended = "suspended"
	outcomeFailed    = "failed"
)

// PlayerInput is one player action delivered to [Orchestrator.Dispatch].
type PlayerInput struct {
	// Action is the natural-language action text. Must not be empty.
	Action string

	// Argument is an optional justification the player attached to the
	// action, forwarded to the gating responder.
	Argument string
}

// TurnResponse is the result of a dispatched or resumed turn.
type TurnResponse struct {
	// Narrative is the merged narrative text. Empty when the turn was
	// suspended for a check.
	Narrative string

	// Phase is the engine phase after the call: [PhaseWaitingInput] for a
	// completed turn, [PhaseAwaitingCheck] for a suspended one.
	Phase Phase

	// TurnCount is the number of completed turns after the call.
	TurnCount int

	// CheckRequest carries the pending check spec when Phase is
	// [PhaseAwaitingCheck]; nil otherwise.
	CheckRequest *responder.CheckSpec

	// PacingAdvice is the pacing responder's tempo advice for the narrator.
	// Advisory only, never part of Narrative.
	PacingAdvice string

	// Diagnostics maps a responder name to its error for every responder
	// that failed without aborting the turn.
	Diagnostics map[string]string
}

// Status is a read-only snapshot of the session's turn state.
type Status struct {
	// Phase is the current engine phase.
	Phase Phase

	// TurnCount is the number of completed turns.
	TurnCount int

	// Location is the current location id.
	Location string

	// PendingCheck is a copy of the check awaiting resolution, nil when the
	// session is not suspended.
	PendingCheck *responder.CheckSpec

	// LastCheckResult is a copy of the most recently resolved check, nil
	// when no check has completed yet.
	LastCheckResult *responder.CheckResult

	// ActiveResponders lists the responders invoked by the last dispatch, in
	// invocation order.
	ActiveResponders []string
}

// Config holds everything needed to construct an [Orchestrator].
//
// Required fields are SessionID, Pack, and Gating. Knowledge, Pacing, and
// Voices are optional; a missing responder is simply never invoked.
type Config struct {
	// SessionID identifies the owning session. Must not be empty.
	SessionID string

	// Pack is the immutable knowledge pack for this session. Must not be
	// nil; it drives NPC presence and location lookups.
	Pack *know.Pack

	// Gating adjudicates whether each action needs a check. Must not be nil.
	Gating responder.Responder

	// Knowledge retrieves background snippets. Optional.
	Knowledge responder.Responder

	// Pacing advises on narrative tempo. Optional.
	Pacing responder.Responder

	// Voices are the NPC voice responders, registered under their
	// [responder.Responder.Name] key ("npc_<id>").
	Voices []responder.Responder

	// Language is the session narration language code. Defaults to the
	// pack's default language.
	Language string

	// CharacterSummary describes the acting player character.
	CharacterSummary string

	// Location is the starting location id. May be empty.
	Location string

	// Metrics receives turn and responder telemetry. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Orchestrator drives the turn lifecycle for one session. Each session owns
// exactly one Orchestrator; all exported methods are safe for concurrent use,
// with calls serialised so a turn runs to completion (or suspension) before
// the next one starts.
type Orchestrator struct {
	sessionID string
	pack      *know.Pack
	registry  map[string]responder.Responder
	language  string
	character string
	metrics   *observe.Metrics

	mu               sync.Mutex
	phase            Phase
	turnCount        int
	location         string
	region           string
	activeTags       []string
	sceneSummary     string
	pendingCheck     *responder.CheckSpec
	pendingAction    string
	pendingKind      string
	lastCheckResult  *responder.CheckResult
	activeResponders []string
	scratch          map[string]string
}

// New creates an Orchestrator in [PhaseWaitingInput].
//
// Errors are prefixed with "orchestrator: ".
func New(cfg Config) (*Orchestrator, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("orchestrator: SessionID must not be empty")
	}
	if cfg.Pack == nil {
		return nil, fmt.Errorf("orchestrator: Pack must not be nil")
	}
	if cfg.Gating == nil {
		return nil, fmt.Errorf("orchestrator: Gating must not be nil")
	}

	registry := map[string]responder.Responder{
		cfg.Gating.Name(): cfg.Gating,
	}
	if cfg.Knowledge != nil {
		registry[cfg.Knowledge.Name()] = cfg.Knowledge
	}
	if cfg.Pacing != nil {
		registry[cfg.Pacing.Name()] = cfg.Pacing
	}
	for _, v := range cfg.Voices {
		registry[v.Name()] = v
	}

	lang := cfg.Language
	if lang == "" {
		lang = cfg.Pack.DefaultLanguage
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	o := &Orchestrator{
		sessionID: cfg.SessionID,
		pack:      cfg.Pack,
		registry:  registry,
		language:  lang,
		character: cfg.CharacterSummary,
		metrics:   metrics,
		phase:     PhaseWaitingInput,
		location:  cfg.Location,
		scratch:   make(map[string]string),
	}
	o.region = o.regionOf(cfg.Location)
	return o, nil
}

// SessionID returns the owning session's identifier.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Status returns a snapshot of the current turn state. Safe to call at any
// time, including while a check is pending; it never disturbs the pending
// check.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Phase:            o.phase,
		TurnCount:        o.turnCount,
		Location:         o.location,
		ActiveResponders: append([]string(nil), o.activeResponders...),
	}
	if o.pendingCheck != nil {
		c := *o.pendingCheck
		st.PendingCheck = &c
	}
	if o.lastCheckResult != nil {
		r := *o.lastCheckResult
		st.LastCheckResult = &r
	}
	return st
}

// MoveTo changes the session's current location. The id must exist in the
// pack.
func (o *Orchestrator) MoveTo(locationID string) error {
	if _, ok := o.pack.Locations[locationID]; !ok {
		return &responder.InputError{Reason: fmt.Sprintf("unknown location %q", locationID)}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.location = locationID
	o.region = o.regionOf(locationID)
	return nil
}

// SetScene updates the free-text scene summary passed to voice and pacing
// responders.
func (o *Orchestrator) SetScene(summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sceneSummary = summary
}

// SetActiveTags replaces the situational tags forwarded to the gating
// responder.
func (o *Orchestrator) SetActiveTags(tags []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeTags = append([]string(nil), tags...)
}

// Dispatch runs one turn for the given player input.
//
// The gating responder runs first. When it reports "no check needed" the
// remaining responders run concurrently and the turn completes: the returned
// response carries the merged narrative and the incremented turn count. When
// it reports a check, the turn suspends in [PhaseAwaitingCheck] with the
// check spec and an unchanged turn count; [Orchestrator.Resume] completes it.
//
// A gating failure aborts the turn: phase and turn count are left unchanged
// and the error is returned. Any other responder's failure is recorded in
// [TurnResponse.Diagnostics] without failing the turn.
func (o *Orchestrator) Dispatch(ctx context.Context, in PlayerInput) (*TurnResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseWaitingInput {
		return nil, &responder.StateError{Op: "dispatch", Phase: string(o.phase)}
	}
	action := strings.TrimSpace(in.Action)
	if action == "" {
		return nil, responder.ErrNoActionProvided
	}

	start := time.Now()
	o.phase = PhaseProcessing
	clear(o.scratch)
	kind := classifyIntent(action)
	o.scratch["action"] = action
	o.scratch["intent"] = kind

	gate, ok := o.registry[gating.Name]
	if !ok {
		o.phase = PhaseWaitingInput
		return nil, fmt.Errorf("orchestrator: no gating responder registered")
	}
	o.activeResponders = []string{gate.Name()}

	gEnv := o.process(ctx, gate, responder.Slice{
		Action:           action,
		PlayerArgument:   in.Argument,
		CharacterSummary: o.character,
		ActiveTags:       append([]string(nil), o.activeTags...),
		Language:         o.language,
	})
	if !gEnv.Success {
		o.phase = PhaseWaitingInput
		o.metrics.RecordTurn(ctx, outcomeFailed, time.Since(start).Seconds())
		return nil, fmt.Errorf("orchestrator: gating responder failed (%s): %s",
			gEnv.Metadata[responder.MetaErrorKind], gEnv.Err)
	}

	if gEnv.Metadata[gating.MetaNeedsCheck] == "true" {
		spec, err := decodeCheckSpec(gEnv.Metadata[gating.MetaCheckRequest])
		if err != nil {
			o.phase = PhaseWaitingInput
			o.metrics.RecordTurn(ctx, outcomeFailed, time.Since(start).Seconds())
			return nil, fmt.Errorf("orchestrator: gating responder failed (%s): %v",
				responder.ErrKindValidation, err)
		}
		o.pendingCheck = spec
		o.pendingAction = action
		o.pendingKind = kind
		o.phase = PhaseAwaitingCheck
		o.metrics.ChecksRequested.Add(ctx, 1)
		o.metrics.PendingChecks.Add(ctx, 1)
		o.metrics.RecordTurn(ctx, outcomeSuspended, time.Since(start).Seconds())

		observe.Logger(ctx).Info("turn suspended for check",
			"session_id", o.sessionID,
			"formula", spec.Formula,
		)
		c := *spec
		return &TurnResponse{
			Phase:        PhaseAwaitingCheck,
			TurnCount:    o.turnCount,
			CheckRequest: &c,
		}, nil
	}

	resp := o.completeTurn(ctx, action, kind, &gEnv, nil)
	o.metrics.RecordTurn(ctx, outcomeNarrated, time.Since(start).Seconds())
	return resp, nil
}

// Resume completes a turn suspended in [PhaseAwaitingCheck] with the
// externally resolved check result. Calling it in any other phase returns a
// [*responder.StateError] and leaves the state untouched.
func (o *Orchestrator) Resume(ctx context.Context, result responder.CheckResult) (*TurnResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseAwaitingCheck {
		return nil, &responder.StateError{Op: "resume", Phase: string(o.phase)}
	}
	switch result.Outcome {
	case responder.OutcomeSuccess, responder.OutcomeFailure,
		responder.OutcomeCriticalSuccess, responder.OutcomeCriticalFailure:
	default:
		return nil, &responder.InputError{Reason: fmt.Sprintf("unknown check outcome %q", result.Outcome)}
	}

	start := time.Now()
	o.phase = PhaseProcessing

	action, kind := o.pendingAction, o.pendingKind
	spec := o.pendingCheck
	o.pendingCheck = nil
	o.pendingAction = ""
	o.pendingKind = ""
	o.lastCheckResult = &result
	o.metrics.PendingChecks.Add(ctx, -1)

	o.activeResponders = o.activeResponders[:0]
	resp := o.completeTurn(ctx, action, kind, nil, &resumed{
		spec:   spec,
		result: result,
	})
	o.metrics.RecordTurn(ctx, outcomeNarrated, time.Since(start).Seconds())
	return resp, nil
}

// Reset abandons any in-flight turn: the pending check and scratch state are
// cleared and the engine returns to [PhaseWaitingInput]. The turn count is
// unchanged.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == PhaseAwaitingCheck {
		o.metrics.PendingChecks.Add(context.Background(), -1)
	}
	o.pendingCheck = nil
	o.pendingAction = ""
	o.pendingKind = ""
	clear(o.scratch)
	o.phase = PhaseWaitingInput
}

// resumed carries the check being resolved into synthesis.
type resumed struct {
	spec   *responder.CheckSpec
	result responder.CheckResult
}

// completeTurn runs the narrative responders, synthesizes the turn, and
// cycles the phase through Narrating back to WaitingInput. Caller holds the
// lock.
func (o *Orchestrator) completeTurn(ctx context.Context, action, kind string, gEnv *responder.Envelope, res *resumed) *TurnResponse {
	envelopes := o.fanOut(ctx, action, kind, res)

	o.phase = PhaseNarrating
	resp := synthesize(gEnv, envelopes, res, o.language)
	o.turnCount++
	o.phase = PhaseWaitingInput

	resp.Phase = o.phase
	resp.TurnCount = o.turnCount
	return resp
}

// fanOut invokes the knowledge, voice, and pacing responders concurrently
// and returns their envelopes keyed by responder name. Caller holds the
// lock.
func (o *Orchestrator) fanOut(ctx context.Context, action, kind string, res *resumed) map[string]responder.Envelope {
	type target struct {
		r  responder.Responder
		in responder.Slice
	}
	var targets []target

	var checkOutcome *responder.CheckResult
	var pendingSpec *responder.CheckSpec
	if res != nil {
		r := res.result
		checkOutcome = &r
		pendingSpec = res.spec
	}

	if k, ok := o.registry[knowledge.Name]; ok {
		targets = append(targets, target{k, responder.Slice{
			Query:    action,
			Location: o.location,
			Region:   o.region,
			Language: o.language,
		}})
	}
	for _, name := range o.presentVoices() {
		targets = append(targets, target{o.registry[name], responder.Slice{
			Action:           action,
			SceneSummary:     o.sceneSummary,
			CharacterSummary: o.character,
			Language:         o.language,
		}})
	}
	if p, ok := o.registry[pacing.Name]; ok {
		targets = append(targets, target{p, responder.Slice{
			Action:       action,
			Kind:         kind,
			TurnCount:    o.turnCount,
			SceneSummary: o.sceneSummary,
			CheckOutcome: checkOutcome,
			PendingCheck: pendingSpec,
		}})
	}

	envelopes := make([]responder.Envelope, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			envelopes[i] = o.process(gctx, t.r, t.in)
			return nil
		})
	}
	_ = g.Wait() // responder envelopes never carry errors through the group

	out := make(map[string]responder.Envelope, len(targets))
	for i, t := range targets {
		name := t.r.Name()
		o.activeResponders = append(o.activeResponders, name)
		out[name] = envelopes[i]
	}
	return out
}

// process runs one responder call with telemetry.
func (o *Orchestrator) process(ctx context.Context, r responder.Responder, in responder.Slice) responder.Envelope {
	ctx, span := observe.StartSpan(ctx, "responder."+r.Name())
	defer span.End()

	start := time.Now()
	env := r.Process(ctx, in)

	status := "ok"
	if !env.Success {
		status = "error"
		o.metrics.RecordResponderFailure(ctx, r.Name(), env.Metadata[responder.MetaErrorKind])
		observe.Logger(ctx).Warn("responder failed",
			"session_id", o.sessionID,
			"responder", r.Name(),
			"error_kind", env.Metadata[responder.MetaErrorKind],
			"err", env.Err,
		)
	}
	o.metrics.RecordResponder(ctx, r.Name(), status, time.Since(start).Seconds())
	return env
}

// presentVoices returns the registry keys of the voice responders whose NPC
// is present at the current location, in stable id order.
func (o *Orchestrator) presentVoices() []string {
	ids := make([]string, 0, len(o.pack.NPCs))
	for id, npc := range o.pack.NPCs {
		if o.location != "" && !npc.PresentAt(o.location) {
			continue
		}
		if _, ok := o.registry[voice.NamePrefix+id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = voice.NamePrefix + id
	}
	return names
}

// regionOf resolves a location id to its region id, or "".
func (o *Orchestrator) regionOf(locationID string) string {
	if loc, ok := o.pack.Locations[locationID]; ok {
		return loc.Region
	}
	return ""
}

// decodeCheckSpec parses the gating responder's JSON-encoded check spec.
func decodeCheckSpec(raw string) (*responder.CheckSpec, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing check request metadata")
	}
	var spec responder.CheckSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("decode check request: %w", err)
	}
	return &spec, nil
}
