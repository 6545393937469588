// Package main implements the automl CLI: catalog inspection, search space
// tooling and trial history reporting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/thalesfsp/automl/internal/config"
	"github.com/thalesfsp/automl/internal/logging"
	"go.uber.org/zap"
)

var version = "dev"

// app holds what every command needs once the configuration is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "automl",
		Short: "Pipeline search tooling",
		Long: `automl inspects the trainer catalog, validates and samples search space
files, and reports on recorded trials.

Configuration is read from --config (YAML) and AUTOML_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = logging.Sync(a.logger)
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newCatalogCmd(a))
	root.AddCommand(newSpaceCmd(a))
	root.AddCommand(newResultsCmd(a))

	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger

	return nil
}
