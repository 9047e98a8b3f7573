// Package provider builds the configured generation backend.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/anthropic"
	"github.com/phrazzld/mailroom/internal/platform/echo"
	"github.com/phrazzld/mailroom/internal/platform/gemini"
	"github.com/phrazzld/mailroom/internal/platform/llm"
	"github.com/phrazzld/mailroom/internal/platform/openai"
)

// New returns the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	var (
		completer llm.Completer
		err       error
	)
	switch cfg.Provider {
	case "echo":
		// Without token counts, echo charges the configured price once per refinement.
		logger.Info("using offline echo generator", "cost_per_call", cfg.CostPer1KTokens)
		return &echo.Generator{CostPerCall: cfg.CostPer1KTokens}, nil
	case "gemini":
		completer, err = gemini.New(ctx, cfg)
	case "openai":
		completer, err = openai.New(cfg)
	case "anthropic":
		completer, err = anthropic.New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("using language model provider",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"max_retries", cfg.MaxRetries)
	return llm.NewGenerator(completer, llm.OptionsFromConfig(cfg), logger)
}
