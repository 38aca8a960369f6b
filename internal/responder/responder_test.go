package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/Rene-Zhou/Astinus-sub001/internal/extract"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
)

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	env := Run(context.Background(), "demo", func(context.Context) (Envelope, error) {
		return Envelope{Content: "hello"}, nil
	})
	if !env.Success {
		t.Fatalf("want success, got %+v", env)
	}
	if env.Content != "hello" {
		t.Fatalf("want content, got %q", env.Content)
	}
	if env.Metadata[MetaResponder] != "demo" {
		t.Fatalf("want responder tag, got %v", env.Metadata)
	}
}

func TestRunConvertsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"extraction", &extract.Error{Preview: "x"}, ErrKindExtraction},
		{"provider", &llm.ProviderError{Provider: "openai", Kind: llm.ErrorKindNetwork, Err: errors.New("timeout")}, ErrKindProvider},
		{"validation", &ValidationError{Field: "formula", Reason: "missing"}, ErrKindValidation},
		{"input", ErrNoActionProvided, ErrKindInput},
		{"state", &StateError{Op: "resume", Phase: "WaitingInput"}, ErrKindState},
		{"wrapped input", errors.Join(errors.New("outer"), ErrNoActionProvided), ErrKindInput},
		{"plain", errors.New("boom"), ErrKindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := Run(context.Background(), "demo", func(context.Context) (Envelope, error) {
				return Envelope{}, tc.err
			})
			if env.Success {
				t.Fatal("want failure envelope")
			}
			if env.Content != "" {
				t.Fatalf("failure content must be empty, got %q", env.Content)
			}
			if env.Err == "" {
				t.Fatal("want error text")
			}
			if got := env.Metadata[MetaErrorKind]; got != tc.wantKind {
				t.Fatalf("want kind %s, got %s", tc.wantKind, got)
			}
			if env.Metadata[MetaResponder] != "demo" {
				t.Fatalf("want responder tag, got %v", env.Metadata)
			}
		})
	}
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	env := Run(context.Background(), "demo", func(context.Context) (Envelope, error) {
		panic("unexpected nil")
	})
	if env.Success {
		t.Fatal("want failure envelope after panic")
	}
	if env.Metadata[MetaErrorKind] != ErrKindInternal {
		t.Fatalf("want internal kind, got %v", env.Metadata)
	}
}

type echoResponder struct{}

func (echoResponder) Name() string { return "echo" }

func (echoResponder) Process(ctx context.Context, in Slice) Envelope {
	return Run(ctx, "echo", func(context.Context) (Envelope, error) {
		if ctx.Err() != nil {
			return Envelope{}, ctx.Err()
		}
		return Envelope{Content: in.Action}, nil
	})
}

func TestProcessSync(t *testing.T) {
	t.Parallel()

	env := ProcessSync(echoResponder{}, Slice{Action: "look around"})
	if !env.Success || env.Content != "look around" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
