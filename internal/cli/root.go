// Package cli defines the cobra commands of the tripgenie operator CLI.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/repository/factory"
	"github.com/tripgenie/tripgenie-backend/internal/services"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

var version = "dev" // set via ldflags at build time

// Env builds what the commands operate on. Tests replace the builders.
type Env struct {
	ConfigPath string
	LogLevel   string

	// NewServices opens the session store and wires the full turn pipeline
	NewServices func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*services.Services, error)
	// NewGateway builds the tool gateway without touching the session store
	NewGateway func(cfg *config.Config, logger *logrus.Logger) *tools.Gateway
}

// DefaultEnv wires the commands to the configured store and provider
func DefaultEnv() *Env {
	return &Env{
		LogLevel: "warn",
		NewServices: func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*services.Services, error) {
			store, err := factory.NewStore(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			svc, err := services.NewServices(cfg, store, services.Options{}, logger)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			return svc, nil
		},
		NewGateway: func(cfg *config.Config, logger *logrus.Logger) *tools.Gateway {
			return tools.NewDefaultGateway(cfg.Tools, nil, logger)
		},
	}
}

func (e *Env) load() (*config.Config, *logrus.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if e.ConfigPath != "" {
		cfg, err = config.LoadFile(e.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if e.LogLevel != "" {
		level = e.LogLevel
	}
	return cfg, logging.New(level, cfg.Log.Format), nil
}

func (e *Env) services(ctx context.Context) (*services.Services, error) {
	cfg, logger, err := e.load()
	if err != nil {
		return nil, err
	}
	return e.NewServices(ctx, cfg, logger)
}

func (e *Env) gateway() (*tools.Gateway, *logrus.Logger, error) {
	cfg, logger, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	return e.NewGateway(cfg, logger), logger, nil
}

// NewRootCmd creates the tripgenie root command
func NewRootCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tripgenie",
		Short: "TripGenie trip-planning assistant operator CLI",
		Long: `Operate the TripGenie conversation engine from the command line.

Available subcommands:
  chat        Talk to the assistant in an interactive session
  sessions    List, show, search and delete stored sessions
  cleanup     Remove sessions idle for longer than a given age
  tools       List or call the trip-planning tools directly
  mcp         Serve the tools over MCP on stdin/stdout
  migrate     Apply or roll back the Postgres schema`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&env.ConfigPath, "config", "c", env.ConfigPath, "Path to a config file (default: search ., ./config, ~/.tripgenie)")
	cmd.PersistentFlags().StringVar(&env.LogLevel, "log-level", env.LogLevel, "Log level override")

	cmd.AddCommand(NewChatCmd(env))
	cmd.AddCommand(NewSessionsCmd(env))
	cmd.AddCommand(NewCleanupCmd(env))
	cmd.AddCommand(NewToolsCmd(env))
	cmd.AddCommand(NewMCPCmd(env))
	cmd.AddCommand(NewMigrateCmd(env))

	return cmd
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCmd(DefaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
