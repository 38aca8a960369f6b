// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// By default it produces a deterministic pseudo-embedding derived from the
// input text length and first bytes, which is stable across runs. Set
// EmbedFunc to override, or Err to inject failures.
type Provider struct {
	mu sync.Mutex

	// Dims is the vector dimensionality. Defaults to 8 when zero.
	Dims int

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// EmbedFunc, if non-nil, overrides the default deterministic embedding.
	EmbedFunc func(text string) []float32

	// EmbedCalls records every text passed to Embed and EmbedBatch.
	EmbedCalls []string
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return 8
	}
	return p.Dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embeddings" }

// vector builds the deterministic pseudo-embedding for text.
func (p *Provider) vector(text string) []float32 {
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	dims := p.Dimensions()
	out := make([]float32, dims)
	for i := 0; i < dims; i++ {
		var b byte
		if i < len(text) {
			b = text[i]
		}
		out[i] = float32(b)/255 + float32(len(text)%7)/7
	}
	return out
}
