// Package session manages the lifecycle of game sessions. A session owns one
// orchestrator wired to a knowledge pack, with its gating, knowledge, pacing,
// and NPC voice responders built from the shared provider stack.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	know "github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/observe"
	"github.com/Rene-Zhou/Astinus-sub001/internal/orchestrator"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/gating"
	knowresp "github.com/Rene-Zhou/Astinus-sub001/internal/responder/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/pacing"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/voice"
	"github.com/Rene-Zhou/Astinus-sub001/internal/retrieval"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
)

// ErrNotFound is returned by [Registry.Get] and [Registry.Evict] for
// unknown session ids.
var ErrNotFound = errors.New("session: not found")

// ErrTooManySessions is returned by [Registry.Create] when the configured
// session cap is reached.
var ErrTooManySessions = errors.New("session: active session limit reached")

// Session is one live game session and its turn engine.
type Session struct {
	// ID is the registry-assigned session identifier.
	ID string

	// PackID names the knowledge pack the session plays in.
	PackID string

	// CreatedAt records when the session was opened.
	CreatedAt time.Time

	// Orch is the session's turn engine.
	Orch *orchestrator.Orchestrator
}

// Options configures a [Registry].
type Options struct {
	// Packs loads and caches knowledge packs. Must not be nil.
	Packs *know.Cache

	// Provider is the completion provider shared by all responders.
	// Must not be nil.
	Provider llm.Provider

	// Searcher is the similarity backend for retrieval. May be nil, in
	// which case ranking runs on keyword matching alone.
	Searcher search.Searcher

	// DefaultPack is the pack assigned when [CreateParams.PackID] is empty.
	DefaultPack string

	// DefaultLanguage is the narration language for sessions that do not
	// request one.
	DefaultLanguage string

	// MaxActive caps concurrent sessions. Zero means no cap.
	MaxActive int

	// Metrics records session gauges. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// CreateParams are the per-session settings for [Registry.Create].
type CreateParams struct {
	// PackID selects the knowledge pack. Falls back to the registry's
	// default pack when empty.
	PackID string

	// Language overrides the registry's default narration language.
	Language string

	// CharacterSummary describes the acting player character.
	CharacterSummary string

	// Location is the starting location id. May be empty.
	Location string
}

// Registry creates, resolves, and evicts sessions. Safe for concurrent use.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry validates opts and returns an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Packs == nil {
		return nil, errors.New("session: pack cache must not be nil")
	}
	if opts.Provider == nil {
		return nil, errors.New("session: provider must not be nil")
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Session),
	}, nil
}

// Create opens a new session playing the requested pack and returns it.
// The session's responders are built from the registry's shared provider
// stack; NPC voices are created for every NPC declared in the pack.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*Session, error) {
	packID := params.PackID
	if packID == "" {
		packID = r.opts.DefaultPack
	}
	if packID == "" {
		return nil, errors.New("session: no pack requested and no default pack configured")
	}

	pack, err := r.opts.Packs.Load(packID)
	if err != nil {
		return nil, fmt.Errorf("session: load pack %q: %w", packID, err)
	}

	lang := params.Language
	if lang == "" {
		lang = r.opts.DefaultLanguage
	}

	id := uuid.NewString()
	orch, err := orchestrator.New(orchestrator.Config{
		SessionID:        id,
		Pack:             pack,
		Gating:           gating.New(r.opts.Provider),
		Knowledge:        knowresp.New(retrieval.NewRanker(r.opts.Searcher), pack),
		Pacing:           pacing.New(r.opts.Provider),
		Voices:           r.buildVoices(pack),
		Language:         lang,
		CharacterSummary: params.CharacterSummary,
		Location:         params.Location,
		Metrics:          r.opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		PackID:    packID,
		CreatedAt: time.Now(),
		Orch:      orch,
	}

	r.mu.Lock()
	if r.opts.MaxActive > 0 && len(r.sessions) >= r.opts.MaxActive {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	r.opts.Metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session created", "session_id", id, "pack_id", packID, "language", lang)
	return sess, nil
}

// Get resolves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Evict removes a session from the registry. Any suspended check is
// abandoned via [orchestrator.Orchestrator.Reset] so the pending-check
// gauge stays accurate.
func (r *Registry) Evict(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	sess.Orch.Reset()
	r.opts.Metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session evicted", "session_id", id, "pack_id", sess.PackID)
	return nil
}

// List returns the live sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// buildVoices creates one voice responder per pack NPC, in stable id order.
func (r *Registry) buildVoices(pack *know.Pack) []responder.Responder {
	ids := make([]string, 0, len(pack.NPCs))
	for id := range pack.NPCs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	voices := make([]responder.Responder, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, voice.New(r.opts.Provider, pack.NPCs[id]))
	}
	return voices
}
