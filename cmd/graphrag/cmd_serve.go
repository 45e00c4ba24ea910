package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/graphrag/internal/config"
	ctxengine "github.com/user/graphrag/internal/context"
	"github.com/user/graphrag/internal/gateway"
	"github.com/user/graphrag/internal/retrieval"
	graphsearch "github.com/user/graphrag/internal/retrieval/graph"
	"github.com/user/graphrag/internal/retrieval/pgvector"
	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/runtime/tools"
	"github.com/user/graphrag/internal/server"
	"github.com/user/graphrag/internal/state"
	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
	"github.com/user/graphrag/pkg/llm/anthropic"
	"github.com/user/graphrag/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmCfg := &llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
	}

	// Embeddings always come from the OpenAI-compatible endpoint, even
	// when generation runs on Anthropic.
	embedClient := openai.New(embedConfig(cfg, llmCfg))

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = anthropic.New(llmCfg)
	default:
		provider = openai.New(llmCfg)
	}

	// Conversation store
	var (
		store   types.ConversationStore
		pingers = map[string]server.Pinger{}
	)
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := state.NewPostgresStore(cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open conversation store: %w", err)
		}
		defer pg.Close()
		store = pg
		pingers["conversations"] = pg
	default:
		fs := state.NewFileStore(cfg.DataDir)
		store = fs
		pingers["conversations"] = fs
	}

	// Retrieval backends
	if cfg.Store.DatabaseURL == "" {
		return fmt.Errorf("store.database_url is required for vector search")
	}
	vector, err := pgvector.New(cfg.Store.DatabaseURL, embedClient)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer vector.Close()
	pingers["vector"] = vector

	graph, err := graphsearch.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database, cfg.Graph.Index)
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer graph.Close(context.Background())
	pingers["graph"] = graph

	// Context assembly
	assembler, err := ctxengine.New(store, cfg.LLM.Model, cfg.LLM.ContextTurns, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create context assembler: %w", err)
	}

	// Tool registry
	fuser := retrieval.NewFuser(cfg.Retrieval.VectorWeight, cfg.Retrieval.GraphWeight)
	hybrid := tools.NewHybridSearch(vector, graph, fuser, cfg.Retrieval.DefaultLimit)
	registry := runtime.NewRegistry()
	registry.Register(tools.NewVectorSearch(vector, cfg.Retrieval.DefaultLimit))
	registry.Register(tools.NewGraphSearch(graph))
	registry.Register(hybrid)
	registry.Register(tools.NewListDocuments(vector, 20))

	// Runner and gateway
	runner := runtime.New(provider, assembler, store, registry, cfg.MaxToolRounds)
	gw := gateway.New(runner, int64(cfg.MaxConcurrent), cfg.SerializeSessions)
	gw.Start(ctx)
	defer gw.Stop()

	srv := server.New(server.Deps{
		Gateway: gw,
		Runner:  runner,
		Store:   store,
		Vector:  vector,
		Graph:   graph,
		Docs:    vector,
		Hybrid:  hybrid,
		Model:   cfg.LLM.Model,
		Pingers: pingers,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}
	go func() {
		slog.Info("graphrag started",
			"addr", addr,
			"data_dir", cfg.DataDir,
			"store_backend", cfg.Store.Backend,
			"max_concurrent", cfg.MaxConcurrent,
			"max_tool_rounds", cfg.MaxToolRounds,
			"serialize_sessions", cfg.SerializeSessions,
			"llm_provider", cfg.LLM.Provider,
			"llm_model", cfg.LLM.Model,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// embedConfig derives the embedding client config. When generation runs
// on Anthropic the embedding key comes from OPENAI_API_KEY.
func embedConfig(cfg *config.Config, llmCfg *llm.Config) *llm.Config {
	out := *llmCfg
	if cfg.LLM.Provider == "anthropic" {
		out.BaseURL = "https://api.openai.com/v1"
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			out.APIKey = key
		}
	}
	return &out
}
