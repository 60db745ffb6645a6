package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rendis/askdb/internal/engine"
	"github.com/rendis/askdb/internal/executor"
	"github.com/rendis/askdb/internal/llm"
	"github.com/rendis/askdb/internal/logging"
	"github.com/rendis/askdb/internal/metadata"
	"github.com/rendis/askdb/pkg/schema"
)

func main() {
	// Optional .env, then config layering: env > settings.json > defaults.
	_ = godotenv.Load()
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: askdb <question>")
		os.Exit(2)
	}
	question := strings.TrimSpace(strings.Join(os.Args[1:], " "))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, question); err != nil {
		logger.Error("askdb failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, question string) error {
	provider, err := buildMetadataProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := buildLLMClient(cfg)
	if err != nil {
		return err
	}

	exec, closeExec, err := buildExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeExec()

	orch, err := engine.New(engine.Capabilities{
		Metadata: provider,
		LLM:      client,
		Executor: exec,
	}, engine.Options{
		MaxRows:       cfg.MaxRows,
		Namespace:     cfg.Namespace,
		FollowupCount: cfg.FollowupCount,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	resp := orch.Run(ctx, schema.Request{
		InputText:     question,
		MaxIterations: cfg.MaxIterations,
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func buildMetadataProvider(ctx context.Context, cfg Config, logger *slog.Logger) (metadata.Provider, error) {
	if cfg.MetadataPath == "" {
		return nil, fmt.Errorf("metadata path is required (ASKDB_METADATA_PATH)")
	}
	file, err := metadata.NewFileProvider(cfg.MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("build metadata provider: %w", err)
	}
	if cfg.RefreshSchedule == "" {
		return file, nil
	}

	cached, err := metadata.NewCachedProvider(file, cfg.RefreshSchedule, logger)
	if err != nil {
		return nil, fmt.Errorf("build metadata cache: %w", err)
	}
	if err := cached.Start(ctx); err != nil {
		return nil, err
	}
	return cached, nil
}

func buildLLMClient(cfg Config) (llm.Client, error) {
	opts := []llm.OpenAIOption{}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, llm.WithModel(cfg.Model))
	}
	client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	return client, nil
}

func buildExecutor(ctx context.Context, cfg Config) (executor.QueryExecutor, func(), error) {
	switch cfg.Database {
	case "libsql", "":
		e, err := executor.NewLibSQLExecutor("file:" + cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open libsql database: %w", err)
		}
		return e, func() { _ = e.Close() }, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, nil, fmt.Errorf("postgres_url is required when database=postgres")
		}
		e, err := executor.NewPostgresExecutor(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return e, func() { _ = e.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database %q (expected libsql or postgres)", cfg.Database)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
