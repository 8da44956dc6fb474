package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`
	TargetUser string `json:"target_user"`
	Schedule   string `json:"schedule"`
	Pipeline   struct {
		GapThresholdMinutes int     `json:"gap_threshold_minutes"`
		BoundaryBatchSize   int     `json:"boundary_batch_size"`
		BoundaryConfidence  float64 `json:"boundary_confidence"`
		ChannelConcurrency  int     `json:"channel_concurrency"`
		LLMConcurrency      int     `json:"llm_concurrency"`
		ReferenceWeight     float64 `json:"reference_weight"`
		EmbeddingWeight     float64 `json:"embedding_weight"`
	} `json:"pipeline"`
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
		Command          string  `json:"command"`
	} `json:"llm"`
}

// DefaultPath is where the config lives unless overridden.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".recap", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".recap"),
		LogLevel: "info",
	}
	cfg.Pipeline.GapThresholdMinutes = 30
	cfg.Pipeline.BoundaryBatchSize = 20
	cfg.Pipeline.BoundaryConfidence = 0.6
	cfg.Pipeline.ChannelConcurrency = 10
	cfg.Pipeline.LLMConcurrency = 20
	cfg.Pipeline.ReferenceWeight = 0.6
	cfg.Pipeline.EmbeddingWeight = 0.4
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.3
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	return cfg
}

// Load reads the config file, writing defaults first if it does not exist,
// then applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if command := os.Getenv("RECAP_LLM_CLI"); command != "" {
		cfg.LLM.Command = command
	}
	if user := os.Getenv("RECAP_TARGET_USER"); user != "" {
		cfg.TargetUser = user
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration that would be a programmer error at
// pipeline construction: negative weights, non-positive concurrency or
// token budgets.
func (c *Config) Validate() error {
	p := &c.Pipeline
	if p.ReferenceWeight < 0 || p.EmbeddingWeight < 0 {
		return fmt.Errorf("similarity weights must be non-negative (reference=%v embedding=%v)", p.ReferenceWeight, p.EmbeddingWeight)
	}
	if p.ChannelConcurrency <= 0 {
		return fmt.Errorf("pipeline.channel_concurrency must be positive, got %d", p.ChannelConcurrency)
	}
	if p.LLMConcurrency <= 0 {
		return fmt.Errorf("pipeline.llm_concurrency must be positive, got %d", p.LLMConcurrency)
	}
	if p.GapThresholdMinutes <= 0 {
		return fmt.Errorf("pipeline.gap_threshold_minutes must be positive, got %d", p.GapThresholdMinutes)
	}
	if p.BoundaryConfidence < 0 || p.BoundaryConfidence > 1 {
		return fmt.Errorf("pipeline.boundary_confidence must be in [0, 1], got %v", p.BoundaryConfidence)
	}
	if c.LLM.MaxContextTokens <= c.LLM.OutputReserve {
		return fmt.Errorf("llm.max_context_tokens (%d) must exceed llm.output_reserve (%d)", c.LLM.MaxContextTokens, c.LLM.OutputReserve)
	}
	return nil
}

// Save writes the config atomically with indentation.
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
