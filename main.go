package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"

	"github.com/reportlens/reportlens/config"
	"github.com/reportlens/reportlens/evaluation"
	"github.com/reportlens/reportlens/rag"
	"github.com/reportlens/reportlens/rag/engine"
	"github.com/reportlens/reportlens/rag/interfaces"
)

func openAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func main() {
	godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		xlog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	embedder := rag.SharedEmbedder(
		openAIClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL),
		cfg.Embedding.Model,
	)

	var store interfaces.Engine
	switch cfg.Engine.Backend {
	case "postgres":
		dims, err := embedder.Dimensions(context.Background())
		if err != nil {
			xlog.Error("Failed to resolve embedding model", "error", err)
			os.Exit(1)
		}
		pg, err := engine.NewPostgresDBCollection(cfg.Collection, cfg.Engine.DatabaseURL, dims)
		if err != nil {
			xlog.Error("Failed to create PostgresDB", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	default:
		chromemDB, err := engine.NewChromemDBCollection(cfg.Collection, filepath.Join(cfg.DataDir, "chromem"))
		if err != nil {
			xlog.Error("Failed to create ChromemDB", "error", err)
			os.Exit(1)
		}
		store = chromemDB
	}

	registry, err := rag.OpenRegistry(filepath.Join(cfg.DataDir, "registry.db"))
	if err != nil {
		xlog.Error("Failed to open registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	chunker, err := rag.NewChunker(cfg.Chunking.MaxSpan, cfg.Chunking.Overlap)
	if err != nil {
		xlog.Error("Invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	indexer, err := rag.NewIndexer(store, registry, embedder, chunker, filepath.Join(cfg.DataDir, "assets"))
	if err != nil {
		xlog.Error("Failed to create indexer", "error", err)
		os.Exit(1)
	}

	// Surface any drift left by a crash before serving queries.
	if _, drifted, err := indexer.Verify(context.Background()); err != nil {
		xlog.Warn("Consistency check failed", "error", err)
	} else if len(drifted) > 0 {
		xlog.Warn("Documents marked inconsistent, re-index them", "documents", drifted)
	}

	retriever := rag.NewRetriever(store, embedder, registry, cfg.Retrieval.TopK, float32(cfg.Retrieval.MinScore))
	generator := rag.NewOpenAIGenerator(
		openAIClient(cfg.Generation.APIKey, cfg.Generation.BaseURL),
		cfg.Generation.Model,
	)
	orchestrator := rag.NewOrchestrator(retriever, generator)

	evalLog, err := evaluation.NewLog(cfg.Evaluation.LogDir)
	if err != nil {
		xlog.Error("Failed to create evaluation log", "error", err)
		os.Exit(1)
	}

	var judge evaluation.Judge
	if cfg.Evaluation.Enabled {
		judge = evaluation.NewOpenAIJudge(
			openAIClient(cfg.Generation.APIKey, cfg.Generation.BaseURL),
			cfg.Evaluation.JudgeModel,
		)
	}
	evaluator := evaluation.NewEvaluator(judge, embedder, evalLog)

	xlog.Info("Starting API", "listen", cfg.Listen, "engine", cfg.Engine.Backend)
	startAPI(cfg, indexer, registry, orchestrator, evaluator, evalLog)
}
