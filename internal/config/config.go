// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads Atlas's YAML configuration file and layers credential
// environment-variable overrides on top, mirroring the corpus's config/env
// split: non-secret tunables live in the file, credentials never do.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends selects the provider[:model] specifier for each capability
// family. Empty fields fall back to each package's own default-provider
// cascade (see pkg/llm.DefaultProvider for the pattern).
type Backends struct {
	Embedding string `yaml:"embedding"`
	Reranker  string `yaml:"reranker"`
	KeyGen    string `yaml:"keygen"`
	Splitter  string `yaml:"splitter"`
	Storage   string `yaml:"storage_dsn"`
}

// Ingestion holds the tunables §6 lists as configurable.
type Ingestion struct {
	ChunkMinChars           int `yaml:"chunk_min_chars"`
	BatchHNSWThreshold      int `yaml:"batch_hnsw_threshold"`
	BatchSize               int `yaml:"batch_size"`
	BatchTimeoutMs          int `yaml:"batch_timeout_ms"`
	QNTMConcurrencyInitial  int `yaml:"qntm_concurrency_initial"`
	QNTMConcurrencyMin      int `yaml:"qntm_concurrency_min"`
	QNTMConcurrencyMax      int `yaml:"qntm_concurrency_max"`
	MonitoringIntervalMs    int `yaml:"monitoring_interval_ms"`
	CheckpointPath          string `yaml:"checkpoint_path"`
}

// Daemon configures the optional single-writer mediator (§4.11).
type Daemon struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

// Config is the top-level Atlas configuration, loaded from YAML plus
// credential env overrides.
type Config struct {
	Backends  Backends  `yaml:"backends"`
	Ingestion Ingestion `yaml:"ingestion"`
	Daemon    Daemon    `yaml:"daemon"`

	// Credentials are never read from YAML; populated from the environment
	// after Load, kept off disk and off the wire.
	Credentials Credentials `yaml:"-"`
}

// Credentials holds API keys read exclusively from the environment.
type Credentials struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	VoyageAPIKey    string
	QdrantAPIKey    string
}

// Default returns a Config with every tunable set to its documented default.
func Default() *Config {
	return &Config{
		Backends: Backends{
			Storage: "qdrant://localhost:6334/atlas",
		},
		Ingestion: Ingestion{
			ChunkMinChars:          200,
			BatchHNSWThreshold:     5000,
			BatchSize:              50,
			BatchTimeoutMs:         15000,
			QNTMConcurrencyInitial: 8,
			QNTMConcurrencyMin:     2,
			QNTMConcurrencyMax:     16,
			MonitoringIntervalMs:   30000,
		},
		Daemon: Daemon{
			SocketPath: defaultSocketPath(),
		},
	}
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/atlas.sock"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/atlas.sock"
	}
	return home + "/.atlas/atlas.sock"
}

// Load reads a YAML config file at path (if it exists; a missing file is not
// an error, Default()'s values are used instead), then applies environment
// overrides for ingestion tunables and credentials.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	loadCredentials(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("ATLAS_CHUNK_MIN_CHARS"); ok {
		cfg.Ingestion.ChunkMinChars = v
	}
	if v, ok := envInt("ATLAS_BATCH_HNSW_THRESHOLD"); ok {
		cfg.Ingestion.BatchHNSWThreshold = v
	}
	if v, ok := envInt("ATLAS_BATCH_SIZE"); ok {
		cfg.Ingestion.BatchSize = v
	}
	if v, ok := envInt("ATLAS_BATCH_TIMEOUT_MS"); ok {
		cfg.Ingestion.BatchTimeoutMs = v
	}
	if v, ok := envInt("ATLAS_QNTM_CONCURRENCY_INITIAL"); ok {
		cfg.Ingestion.QNTMConcurrencyInitial = v
	}
	if v, ok := envInt("ATLAS_QNTM_CONCURRENCY_MIN"); ok {
		cfg.Ingestion.QNTMConcurrencyMin = v
	}
	if v, ok := envInt("ATLAS_QNTM_CONCURRENCY_MAX"); ok {
		cfg.Ingestion.QNTMConcurrencyMax = v
	}
	if v := os.Getenv("ATLAS_STORAGE_DSN"); v != "" {
		cfg.Backends.Storage = v
	}
	if v := os.Getenv("ATLAS_DAEMON_SOCKET"); v != "" {
		cfg.Daemon.SocketPath = v
	}
}

func loadCredentials(cfg *Config) {
	cfg.Credentials = Credentials{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		VoyageAPIKey:    os.Getenv("VOYAGE_API_KEY"),
		QdrantAPIKey:    os.Getenv("QDRANT_API_KEY"),
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// BatchTimeout returns Ingestion.BatchTimeoutMs as a time.Duration.
func (i Ingestion) BatchTimeout() time.Duration {
	return time.Duration(i.BatchTimeoutMs) * time.Millisecond
}

// MonitoringInterval returns Ingestion.MonitoringIntervalMs as a time.Duration.
func (i Ingestion) MonitoringInterval() time.Duration {
	return time.Duration(i.MonitoringIntervalMs) * time.Millisecond
}
