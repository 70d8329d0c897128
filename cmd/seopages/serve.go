package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/ai"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/runner"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/task"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/artifact"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/db"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/scheduler"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/server"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the generation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	sessions, err := session.NewManager(database)
	if err != nil {
		return err
	}
	store := artifact.NewStore(database)
	tasks := task.NewManager(database, sessions, store)
	if _, err := tasks.RecoverStale(context.Background()); err != nil {
		return fmt.Errorf("failed to recover interrupted tasks: %w", err)
	}

	registry, err := skills.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to load skill catalog: %w", err)
	}

	providers := buildProviders(cfg)
	if len(providers) == 0 {
		return ai.ErrNotConfigured
	}

	r := runner.New(cfg, sessions, tasks, skills.NewResolver(registry), providers)

	sweeper := scheduler.New(cfg.Audit, store, r)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("[Main] Received %v, shutting down", sig)
		cancel()
	}()

	srv := server.New(cfg, sessions, tasks, registry, r)
	return srv.ListenAndServe(ctx)
}

// buildProviders returns the configured completion providers in fallback
// order: Anthropic first, then OpenAI.
func buildProviders(cfg *config.Config) []ai.Provider {
	var providers []ai.Provider
	if cfg.Providers.AnthropicAPIKey != "" {
		providers = append(providers, ai.NewAnthropicProvider(cfg.Providers.AnthropicAPIKey, cfg.Providers.AnthropicModel))
		logging.Infof("[Main] Anthropic provider configured (%s)", cfg.Providers.AnthropicModel)
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIModel))
		logging.Infof("[Main] OpenAI provider configured (%s)", cfg.Providers.OpenAIModel)
	}
	return providers
}
