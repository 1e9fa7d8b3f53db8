package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barysiuk/skillsmd/internal/config"
	"github.com/barysiuk/skillsmd/internal/core"
	"github.com/barysiuk/skillsmd/internal/logger"
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	config *config.Manager
	cfg    *config.Config
	agents []core.AgentDef
}

// newDeps creates shared dependencies. Called lazily by commands that need them.
func newDeps(cmd *cobra.Command) (*deps, error) {
	mgr, err := newConfigManager(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	agents, err := core.LoadAgents()
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}

	return &deps{
		config: mgr,
		cfg:    cfg,
		agents: agents,
	}, nil
}

// newConfigManager creates the config manager with the persistent flags bound.
func newConfigManager(cmd *cobra.Command) (*config.Manager, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		if err := mgr.Viper().BindPFlag(config.KeyLogLevel, f); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}
	return mgr, nil
}

// setupLogging applies the configured log level and format before any
// command runs.
func setupLogging(cmd *cobra.Command) error {
	mgr, err := newConfigManager(cmd)
	if err != nil {
		return err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	logger.SetLogOutput(cmd.ErrOrStderr())
	logger.SetLogFormat(cfg.LogFormat)
	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return nil
}
