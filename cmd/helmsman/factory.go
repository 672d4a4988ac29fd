package main

import (
	"fmt"

	"github.com/ShayCichocki/helmsman/internal/config"
	"github.com/ShayCichocki/helmsman/internal/decision"
	"github.com/ShayCichocki/helmsman/internal/state"
)

// buildDecider constructs the decision-service client from configuration.
func buildDecider(cfg *config.Config) (*decision.AnthropicClient, error) {
	apiKey := ""
	if !cfg.Anthropic.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w\n\nSet it with:\n  export ANTHROPIC_API_KEY=your-key-here\nor:\n  helmsman config anthropic.api_key your-key-here", err)
		}
		apiKey = key
	}

	return decision.NewAnthropicClient(decision.Config{
		Model:         cfg.Anthropic.Model,
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
}

// openStore opens the session database and applies migrations.
func openStore(cfg *config.Config) (*state.DB, error) {
	path := cfg.Storage.DBPath
	if path == "" {
		path = state.DefaultDBPath()
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
