package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
	llmmock "github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySucceeds(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
		Model:            "primary-model",
	}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.User("hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Fatalf("want primary response, got %q", resp.Content)
	}
	if len(backup.CompleteCalls) != 0 {
		t.Fatal("backup must not be called when primary succeeds")
	}
	if f.ModelID() != "primary-model" {
		t.Fatalf("ModelID = %q, want primary-model", f.ModelID())
	}
}

func TestLLMFallback_FailsOverToBackup(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: &llm.ProviderError{Provider: "primary", Kind: llm.ErrorKindNetwork, Err: errTest},
	}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.User("hello")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Fatalf("want backup response, got %q", resp.Content)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	bad := &llm.ProviderError{Provider: "p", Kind: llm.ErrorKindNetwork, Err: errTest}
	f := NewLLMFallback(&llmmock.Provider{CompleteErr: bad}, "primary", FallbackConfig{})
	f.AddFallback("backup", &llmmock.Provider{CompleteErr: bad})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.User("hello")},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: &llm.ProviderError{Provider: "primary", Kind: llm.ErrorKindNetwork, Err: errTest},
	}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	f.AddFallback("backup", backup)

	req := llm.CompletionRequest{Messages: []llm.Message{llm.User("hello")}}

	// First call trips the primary's breaker.
	if _, err := f.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Second call must skip the primary entirely.
	if _, err := f.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := len(primary.CompleteCalls); got != 1 {
		t.Fatalf("primary called %d times, want 1 (breaker open)", got)
	}
	if got := len(backup.CompleteCalls); got != 2 {
		t.Fatalf("backup called %d times, want 2", got)
	}
}

func TestLLMFallback_CountTokens(t *testing.T) {
	f := NewLLMFallback(&llmmock.Provider{TokenCount: 42}, "primary", FallbackConfig{})
	n, err := f.CountTokens([]llm.Message{llm.User("hello world")})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 42 {
		t.Fatalf("CountTokens = %d, want 42", n)
	}
}
