// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package config loads engine configuration from the environment. Every
// option has a default; only provider credentials, the database URL and the
// chain settings are deployment-specific.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Orchestrator OrchestratorConfig
	Worker       WorkerConfig
	AI           AIConfig
	Database     DatabaseConfig
	Chain        ChainConfig
}

type OrchestratorConfig struct {
	HTTPPort           int
	WorkerURL          string
	WorkerPollInterval time.Duration
	WorkerTimeout      time.Duration
	DedupeTTL          time.Duration
}

type WorkerConfig struct {
	HTTPPort         int
	EstimatorCommand []string
	EstimatorDir     string
}

// ProviderConfig describes one AI provider endpoint and its model list, in
// fallback order.
type ProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Models  []string
}

type AIConfig struct {
	MaxOptimizerCycles     int
	ProviderRetries        int
	RetryBaseDelay         time.Duration
	AcceptanceMaxAttempts  int
	MaxFnRegressionPct     float64
	MaxDeployRegressionPct float64
	Providers              []ProviderConfig
}

type DatabaseConfig struct {
	URL     string
	SSLMode string
}

type ChainConfig struct {
	RPCURL          string
	SignerKey       string
	RegistryAddress string
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			HTTPPort:           envInt("ORCHESTRATOR_PORT", 8080),
			WorkerURL:          envString("WORKER_URL", "http://localhost:8090"),
			WorkerPollInterval: envMillis("WORKER_POLL_INTERVAL_MS", 1000),
			WorkerTimeout:      envMillis("WORKER_TIMEOUT_MS", 180000),
			DedupeTTL:          envMillis("ANALYSIS_JOB_DEDUPE_TTL_MS", 600000),
		},
		Worker: WorkerConfig{
			HTTPPort:         envInt("WORKER_PORT", 8090),
			EstimatorCommand: strings.Fields(envString("ESTIMATOR_CMD", "node scripts/estimate-gas.js")),
			EstimatorDir:     envString("ESTIMATOR_DIR", "."),
		},
		AI: AIConfig{
			MaxOptimizerCycles:     envInt("AI_MAX_OPTIMIZER_CYCLES", 2),
			ProviderRetries:        envInt("AI_PROVIDER_RETRIES", 2),
			RetryBaseDelay:         envMillis("AI_RETRY_BASE_DELAY_MS", 600),
			AcceptanceMaxAttempts:  envInt("AI_ACCEPTANCE_MAX_ATTEMPTS", 3),
			MaxFnRegressionPct:     envFloat("AI_MAX_ALLOWED_REGRESSION_PCT", 10),
			MaxDeployRegressionPct: envFloat("AI_MAX_DEPLOYMENT_REGRESSION_PCT", 20),
			Providers:              loadProviders(),
		},
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: os.Getenv("PGSSLMODE"),
		},
		Chain: ChainConfig{
			RPCURL:          os.Getenv("CHAIN_RPC_URL"),
			SignerKey:       os.Getenv("BACKEND_SIGNER_PRIVATE_KEY"),
			RegistryAddress: os.Getenv("GAS_OPTIMIZATION_REGISTRY_ADDRESS"),
		},
	}
}

// loadProviders builds the ordered provider list. A provider is included
// only when its API key is set; the order here is the fallback order.
func loadProviders() []ProviderConfig {
	var providers []ProviderConfig

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:    "gemini",
			BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			APIKey:  key,
			Models:  envList("GEMINI_MODELS", "gemini-2.0-flash,gemini-1.5-flash"),
		})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:    "openai",
			BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  key,
			Models:  envList("OPENAI_MODELS", "gpt-4o-mini"),
		})
	}

	return providers
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envMillis(key string, fallbackMS int) time.Duration {
	return time.Duration(envInt(key, fallbackMS)) * time.Millisecond
}

func envList(key, fallback string) []string {
	raw := envString(key, fallback)
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
