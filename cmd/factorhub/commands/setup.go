package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/linchuan/factorhub/internal/store"
	"github.com/linchuan/factorhub/internal/strategy"
	"github.com/linchuan/factorhub/pkg/config"
	"github.com/linchuan/factorhub/pkg/database"
	"github.com/linchuan/factorhub/pkg/logger"
)

// registry exposes the built-in strategies to every command.
func registry() *strategy.Registry {
	return strategy.Builtins()
}

// buildStrategy constructs the named strategy, optionally taking the name
// and options from a YAML profile.
func buildStrategy(name, profilePath string) (strategy.Strategy, error) {
	params := strategy.Params{}
	if profilePath != "" {
		p, err := strategy.LoadProfile(profilePath)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = p.Strategy
		}
		params = p.Params
	}
	if name == "" {
		return nil, fmt.Errorf("strategy name is required (argument or --profile)")
	}
	return registry().New(name, params)
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// loadResearchStore front-loads calendar, universe, and every cataloged
// field from Postgres into a frozen store. The pool is closed before
// returning on every path; nothing downstream touches the database again.
func loadResearchStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*store.Store, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	repo := store.NewRepository(db.Pool)
	specs, err := repo.LoadFieldCatalog(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s, err := store.LoadStore(ctx, repo, time.Now(), specs)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"fields":     len(specs),
		"securities": len(s.Universe()),
		"days":       s.Calendar().Len(),
		"duration":   time.Since(start),
	}).Info("Data store loaded")
	return s, nil
}
