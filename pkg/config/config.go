package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Database struct {
		URL        string `yaml:"url"`
		JobsTable  string `yaml:"jobs_table"`
		ChunkTable string `yaml:"chunk_table"`
		VectorDim  int    `yaml:"vector_dim"`
	} `yaml:"database"`

	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Fetcher struct {
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RateLimit      float64 `yaml:"rate_limit"`
		UserAgent      string  `yaml:"user_agent"`
	} `yaml:"fetcher"`

	Processor struct {
		ChunkSize      int `yaml:"chunk_size"`
		ChunkOverlap   int `yaml:"chunk_overlap"`
		MinChunkLength int `yaml:"min_chunk_length"`
	} `yaml:"processor"`

	Query struct {
		TopK     int     `yaml:"top_k"`
		MinScore float32 `yaml:"min_score"`
	} `yaml:"query"`

	Worker struct {
		Concurrency         int    `yaml:"concurrency"`
		QueueSize           int    `yaml:"queue_size"`
		MaxAttempts         int    `yaml:"max_attempts"`
		RetryBackoffSeconds int    `yaml:"retry_backoff_seconds"`
		PendingMaxAgeMin    int    `yaml:"pending_max_age_minutes"`
		SweepSchedule       string `yaml:"sweep_schedule"`
	} `yaml:"worker"`
}

// FetchTimeout returns the fetch stage timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the base redelivery backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Worker.RetryBackoffSeconds) * time.Second
}

// PendingMaxAge returns the sweep threshold; zero disables the sweeper.
func (c *Config) PendingMaxAge() time.Duration {
	return time.Duration(c.Worker.PendingMaxAgeMin) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragd/config.yaml"),
			"/etc/ragd/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	if config.Database.JobsTable == "" {
		config.Database.JobsTable = "ingestion_jobs"
	}
	if config.Database.ChunkTable == "" {
		config.Database.ChunkTable = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Fetcher.TimeoutSeconds == 0 {
		config.Fetcher.TimeoutSeconds = 30
	}
	if config.Fetcher.RateLimit == 0 {
		config.Fetcher.RateLimit = 2.0
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 100
	}

	if config.Query.TopK == 0 {
		config.Query.TopK = 5
	}
	if config.Query.MinScore == 0 {
		config.Query.MinScore = 0.3
	}

	if config.Worker.Concurrency == 0 {
		config.Worker.Concurrency = 4
	}
	if config.Worker.QueueSize == 0 {
		config.Worker.QueueSize = 256
	}
	if config.Worker.MaxAttempts == 0 {
		config.Worker.MaxAttempts = 3
	}
	if config.Worker.RetryBackoffSeconds == 0 {
		config.Worker.RetryBackoffSeconds = 5
	}
	if config.Worker.SweepSchedule == "" {
		config.Worker.SweepSchedule = "@every 5m"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
