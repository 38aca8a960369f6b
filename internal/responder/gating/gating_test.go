package gating

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
	llmmock "github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm/mock"
)

func TestProcessNoCheck(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"needs_check": false, "reasoning": "Reading a menu is trivial."}`,
		},
	}
	g := New(p)

	env := g.Process(context.Background(), responder.Slice{Action: "read the menu"})
	if !env.Success {
		t.Fatalf("want success, got error %q", env.Err)
	}
	if env.Content != "Reading a menu is trivial." {
		t.Fatalf("unexpected content %q", env.Content)
	}
	if env.Metadata[MetaNeedsCheck] != "false" {
		t.Fatalf("want needs_check=false, got %q", env.Metadata[MetaNeedsCheck])
	}
	if _, ok := env.Metadata[MetaCheckRequest]; ok {
		t.Fatal("check request must be absent when no check is needed")
	}
}

func TestProcessNeedsCheck(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Here is my ruling:\n```json\n" + `{
				"needs_check": true,
				"reasoning": "Scaling a wet wall is risky.",
				"check_request": {
					"intention": "climb the garden wall unseen",
					"traits": ["nimble"],
					"tags": ["raining"],
					"formula": "3d6kl2",
					"instructions": {"en": "Roll 3d6, keep the lowest two."}
				}
			}` + "\n```",
		},
	}
	g := New(p)

	env := g.Process(context.Background(), responder.Slice{Action: "climb the wall"})
	if !env.Success {
		t.Fatalf("want success, got error %q", env.Err)
	}
	if env.Metadata[MetaNeedsCheck] != "true" {
		t.Fatalf("want needs_check=true, got %q", env.Metadata[MetaNeedsCheck])
	}

	var spec responder.CheckSpec
	if err := json.Unmarshal([]byte(env.Metadata[MetaCheckRequest]), &spec); err != nil {
		t.Fatalf("decode check request: %v", err)
	}
	if spec.Formula != "3d6kl2" {
		t.Fatalf("want formula 3d6kl2, got %q", spec.Formula)
	}
	if spec.Intention == "" || len(spec.Traits) != 1 {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestProcessEmptyAction(t *testing.T) {
	t.Parallel()

	g := New(&llmmock.Provider{})
	env := g.Process(context.Background(), responder.Slice{Action: "   "})
	if env.Success {
		t.Fatal("want failure for empty action")
	}
	if env.Metadata[responder.MetaErrorKind] != responder.ErrKindInput {
		t.Fatalf("want input error kind, got %q", env.Metadata[responder.MetaErrorKind])
	}
}

func TestProcessInvalidCheckSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing check request",
			content: `{"needs_check": true, "reasoning": "risky"}`,
		},
		{
			name: "empty intention",
			content: `{"needs_check": true, "reasoning": "risky",
				"check_request": {"intention": "", "formula": "1d20"}}`,
		},
		{
			name: "bad formula",
			content: `{"needs_check": true, "reasoning": "risky",
				"check_request": {"intention": "sneak past", "formula": "lots of dice"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New(&llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: tt.content},
			})
			env := g.Process(context.Background(), responder.Slice{Action: "sneak past the guard"})
			if env.Success {
				t.Fatal("want validation failure")
			}
			if env.Metadata[responder.MetaErrorKind] != responder.ErrKindValidation {
				t.Fatalf("want validation kind, got %q", env.Metadata[responder.MetaErrorKind])
			}
		})
	}
}

func TestProcessProviderFailure(t *testing.T) {
	t.Parallel()

	g := New(&llmmock.Provider{
		CompleteErr: &llm.ProviderError{Provider: "mock", Kind: llm.ErrorKindNetwork, Err: errors.New("timeout")},
	})
	env := g.Process(context.Background(), responder.Slice{Action: "open the door"})
	if env.Success {
		t.Fatal("want failure")
	}
	if env.Metadata[responder.MetaErrorKind] != responder.ErrKindProvider {
		t.Fatalf("want provider kind, got %q", env.Metadata[responder.MetaErrorKind])
	}
}

func TestProcessExtractionFailure(t *testing.T) {
	t.Parallel()

	g := New(&llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I cannot answer in JSON, sorry."},
	})
	env := g.Process(context.Background(), responder.Slice{Action: "open the door"})
	if env.Success {
		t.Fatal("want failure")
	}
	if env.Metadata[responder.MetaErrorKind] != responder.ErrKindExtraction {
		t.Fatalf("want extraction kind, got %q", env.Metadata[responder.MetaErrorKind])
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	in := responder.Slice{
		Action:           "pick the lock",
		CharacterSummary: "A retired burglar with shaky hands.",
		ActiveTags:       []string{"dim light", "hurried"},
		PlayerArgument:   "I practiced on this exact lock model.",
		Language:         "zh",
	}
	req := BuildPrompt(in)

	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("want one user message, got %+v", req.Messages)
	}
	body := req.Messages[0].Content
	for _, want := range []string{"pick the lock", "retired burglar", "dim light, hurried", "exact lock model"} {
		if !strings.Contains(body, want) {
			t.Fatalf("prompt missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(req.SystemPrompt, `"zh"`) {
		t.Fatalf("system prompt must request zh instructions:\n%s", req.SystemPrompt)
	}
}

func TestValidFormulas(t *testing.T) {
	t.Parallel()

	valid := []string{"1d20", "3d6kl2", "2d10+3", "4d6kh3", "1d100-10", "10d6"}
	for _, f := range valid {
		if !formulaRe.MatchString(f) {
			t.Errorf("want %q accepted", f)
		}
	}
	invalid := []string{"", "d20", "0d6", "3d6k2", "3d6kl", "1d20++5", "roll dice"}
	for _, f := range invalid {
		if formulaRe.MatchString(f) {
			t.Errorf("want %q rejected", f)
		}
	}
}
