package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Listen     string           `yaml:"listen"`
	DataDir    string           `yaml:"data_dir"`
	Collection string           `yaml:"collection"`
	Engine     EngineConfig     `yaml:"engine"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
}

// EngineConfig selects the vector collection backend.
type EngineConfig struct {
	Backend     string `yaml:"backend"` // "chromem" or "postgres"
	DatabaseURL string `yaml:"database_url"`
}

// ChunkingConfig holds the chunker parameters.
type ChunkingConfig struct {
	MaxSpan int `yaml:"max_span"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// GenerationConfig holds the answer generation model settings.
type GenerationConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// EvaluationConfig holds the judge model and log settings.
type EvaluationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	JudgeModel string `yaml:"judge_model"`
	LogDir     string `yaml:"log_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:     ":8080",
		DataDir:    "data",
		Collection: "reports",
		Engine: EngineConfig{
			Backend: "chromem",
		},
		Chunking: ChunkingConfig{
			MaxSpan: 1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0.3,
		},
		Generation: GenerationConfig{
			Model: "gpt-4o",
		},
		Evaluation: EvaluationConfig{
			Enabled:    true,
			JudgeModel: "gpt-4o",
			LogDir:     "logs",
		},
	}
}

// Load reads the YAML config at path over the defaults and then applies
// environment overrides. A missing file is not an error; credentials are
// expected from the environment in that case.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDRESS"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VECTOR_ENGINE"); v != "" {
		c.Engine.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Engine.DatabaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
		c.Generation.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("JUDGE_MODEL"); v != "" {
		c.Evaluation.JudgeModel = v
	}
}

func (c *Config) validate() error {
	if c.Chunking.MaxSpan <= 0 {
		return fmt.Errorf("chunking.max_span must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSpan {
		return fmt.Errorf("chunking.overlap must be in [0, max_span)")
	}
	if c.Engine.Backend != "chromem" && c.Engine.Backend != "postgres" {
		return fmt.Errorf("engine.backend must be chromem or postgres, got %q", c.Engine.Backend)
	}
	if c.Engine.Backend == "postgres" && c.Engine.DatabaseURL == "" {
		return fmt.Errorf("engine.database_url is required for the postgres backend")
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1")
	}
	return nil
}
