package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all askdb configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	OpenAIAPIKey    string `json:"openai_api_key"`
	OpenAIBaseURL   string `json:"openai_base_url"`
	Model           string `json:"model"`
	MetadataPath    string `json:"metadata_path"`
	RefreshSchedule string `json:"refresh_schedule"`
	Database        string `json:"database"`
	DBPath          string `json:"db_path"`
	PostgresURL     string `json:"postgres_url"`
	Namespace       string `json:"namespace"`
	MaxRows         int    `json:"max_rows"`
	MaxIterations   int    `json:"max_iterations"`
	FollowupCount   int    `json:"followup_count"`
	LogLevel        string `json:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Database:      "libsql",
		DBPath:        filepath.Join(askdbDir(), "askdb.db"),
		MaxRows:       1000,
		MaxIterations: 3,
		FollowupCount: 3,
		LogLevel:      "info",
	}
}

func askdbDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askdb"
	}
	return filepath.Join(home, ".askdb")
}

func settingsPath() string {
	return filepath.Join(askdbDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("ASKDB_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("ASKDB_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ASKDB_METADATA_PATH"); v != "" {
		cfg.MetadataPath = v
	}
	if v := os.Getenv("ASKDB_REFRESH_SCHEDULE"); v != "" {
		cfg.RefreshSchedule = v
	}
	if v := os.Getenv("ASKDB_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("ASKDB_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ASKDB_POSTGRES_URL"); v != "" {
		cfg.PostgresURL = v
	}
	if v := os.Getenv("ASKDB_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("ASKDB_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRows = n
		}
	}
	if v := os.Getenv("ASKDB_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("ASKDB_FOLLOWUP_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FollowupCount = n
		}
	}
	if v := os.Getenv("ASKDB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
