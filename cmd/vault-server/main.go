// Package main is the entry point for the Dragon's Vault server.
// It only wires dependencies and exposes a few operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dragonsvault/server/internal/platform/config"
	"github.com/dragonsvault/server/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "vault-server",
		Short: "Dragon's Vault server",
		Long: `vault-server runs the Dragon's Vault backend: per-session dragon
engines, the chore ledger with coin payouts, and the money tutor.

Configuration is read from an optional YAML file and VAULT_* environment
variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(c),
		newBalanceCmd(c),
		newRewardCmd(),
	)
	return root
}

func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Options{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding})
}
