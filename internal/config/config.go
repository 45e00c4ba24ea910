package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir           string `json:"data_dir"`
	LogLevel          string `json:"log_level"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	MaxConcurrent     int    `json:"max_concurrent"`
	MaxToolRounds     int    `json:"max_tool_rounds"`
	SerializeSessions bool   `json:"serialize_sessions"`
	Store             struct {
		Backend     string `json:"backend"`
		DatabaseURL string `json:"database_url"`
	} `json:"store"`
	LLM struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		EmbeddingModel   string  `json:"embedding_model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
		ContextTurns     int     `json:"context_turns"`
	} `json:"llm"`
	Graph struct {
		URI      string `json:"uri"`
		Username string `json:"username"`
		Password string `json:"password"`
		Database string `json:"database"`
		Index    string `json:"index"`
	} `json:"graph"`
	Retrieval struct {
		VectorWeight float64 `json:"vector_weight"`
		GraphWeight  float64 `json:"graph_weight"`
		DefaultLimit int     `json:"default_limit"`
	} `json:"retrieval"`
}

func Load(path string) (*Config, error) {
	// .env is optional; real env vars win over it.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".graphrag"),
		LogLevel:      "info",
		Host:          "0.0.0.0",
		Port:          8058,
		MaxConcurrent: 2,
		MaxToolRounds: 10,
	}
	cfg.Store.Backend = "file"
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.LLM.ContextTurns = 10
	cfg.Graph.URI = "bolt://localhost:7687"
	cfg.Graph.Username = "neo4j"
	cfg.Graph.Database = "neo4j"
	cfg.Graph.Index = "entity_facts"
	cfg.Retrieval.VectorWeight = 0.5
	cfg.Retrieval.GraphWeight = 0.5
	cfg.Retrieval.DefaultLimit = 10

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && cfg.LLM.Provider == "anthropic" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Store.DatabaseURL = dbURL
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.Graph.Password = pass
	}

	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func writeDefaults(path string, cfg *Config) error {
	return Save(path, cfg)
}
