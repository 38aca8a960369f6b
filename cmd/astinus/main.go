// Command astinus is the main entry point for the Astinus turn
// orchestration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rene-Zhou/Astinus-sub001/internal/config"
	"github.com/Rene-Zhou/Astinus-sub001/internal/gateway"
	"github.com/Rene-Zhou/Astinus-sub001/internal/health"
	"github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/observe"
	"github.com/Rene-Zhou/Astinus-sub001/internal/resilience"
	"github.com/Rene-Zhou/Astinus-sub001/internal/session"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/embeddings"
	oaembed "github.com/Rene-Zhou/Astinus-sub001/pkg/provider/embeddings/openai"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm/anyllm"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search/postgres"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "astinus: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "astinus: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("astinus starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Model providers ───────────────────────────────────────────────────────
	provider, err := buildLLM(cfg.Providers)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	var embedder embeddings.Provider
	if cfg.Providers.Embeddings.Name != "" {
		embedder, err = buildEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to build embeddings provider", "err", err)
			return 1
		}
	}

	// ── Similarity backend (optional) ─────────────────────────────────────────
	var (
		searcher search.Searcher
		store    *postgres.Store
	)
	if cfg.Search.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.Search.PostgresDSN, embedder)
		if err != nil {
			slog.Error("failed to open search store", "err", err)
			return 1
		}
		defer store.Close()
		searcher = store

		if cfg.Search.EmbeddingDimensions != 0 && cfg.Search.EmbeddingDimensions != embedder.Dimensions() {
			slog.Warn("configured embedding dimensions do not match the embedding model",
				"configured", cfg.Search.EmbeddingDimensions,
				"model", embedder.Dimensions(),
			)
		}
	} else {
		slog.Info("no search backend configured; retrieval runs keyword-only")
	}

	// ── Knowledge packs ───────────────────────────────────────────────────────
	packs := knowledge.NewCache(cfg.Packs.Dir)
	available, err := packs.ListAvailable()
	if err != nil {
		slog.Error("failed to scan pack directory", "dir", cfg.Packs.Dir, "err", err)
		return 1
	}
	slog.Info("knowledge packs discovered", "dir", cfg.Packs.Dir, "packs", available)

	if store != nil {
		if err := indexPacks(ctx, store, packs, available); err != nil {
			slog.Error("failed to index packs", "err", err)
			return 1
		}
	}

	// ── Session registry ──────────────────────────────────────────────────────
	registry, err := session.NewRegistry(session.Options{
		Packs:           packs,
		Provider:        provider,
		Searcher:        searcher,
		DefaultPack:     cfg.Packs.Default,
		DefaultLanguage: cfg.Sessions.DefaultLanguage,
		MaxActive:       cfg.Sessions.MaxActive,
	})
	if err != nil {
		slog.Error("failed to create session registry", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	gateway.New(registry).Register(mux)
	healthHandler(store, provider).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// buildLLM constructs the completion provider stack: the primary backend
// plus, when fallbacks are configured, a circuit-broken failover chain.
func buildLLM(pc config.ProvidersConfig) (llm.Provider, error) {
	primary, err := newLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("primary %q: %w", pc.LLM.Name, err)
	}
	if len(pc.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{})
	for _, entry := range pc.Fallbacks {
		fb, err := newLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, fb)
		slog.Info("LLM fallback registered", "name", entry.Name, "model", entry.Model)
	}
	return chain, nil
}

// newLLM builds one any-llm backend from a provider entry. ollama is a local
// server and authenticates via BaseURL rather than an API key.
func newLLM(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// buildEmbeddings constructs the embeddings provider from a provider entry.
func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q", entry.Name)
	}
}

// indexPacks embeds every discovered pack's snippets into the search store so
// vector retrieval has something to rank against.
func indexPacks(ctx context.Context, store *postgres.Store, packs *knowledge.Cache, ids []string) error {
	for _, id := range ids {
		pack, err := packs.Load(id)
		if err != nil {
			return err
		}
		if err := store.IndexPack(ctx, pack); err != nil {
			return err
		}
		slog.Info("pack indexed", "pack_id", id, "snippets", len(pack.Snippets))
	}
	return nil
}

// healthHandler wires the readiness checks for the configured dependencies.
func healthHandler(store *postgres.Store, provider llm.Provider) *health.Handler {
	checkers := []health.Checker{
		{Name: "provider", Check: func(_ context.Context) error {
			if provider.ModelID() == "" {
				return errors.New("no model configured")
			}
			return nil
		}},
	}
	if store != nil {
		checkers = append(checkers, health.Checker{Name: "search", Check: store.Ping})
	}
	return health.New(checkers...)
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
