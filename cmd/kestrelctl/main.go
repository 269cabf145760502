// Kestrel - Signal resolution that turns market signals into one verdict.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

// Version information (set via ldflags)
var Version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "kestrelctl",
		Short: "Kestrel verdict engine toolkit",
		Long: `kestrelctl scores signal bundles, prints the resolution table and
backtests labelled scenarios, either in-process or against a running server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("KESTREL_CONFIG"), "Path to a YAML or TOML config file")

	cmd.AddCommand(newScoreCmd(opts))
	cmd.AddCommand(newRulesCmd(opts))
	cmd.AddCommand(newBacktestCmd(opts))

	return cmd
}

// localProcessor builds an in-process processor from the configured thresholds and weights.
func (o *rootOptions) localProcessor() (*verdict.Processor, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	engine, err := rules.NewEngine(cfg.Engine.Thresholds)
	if err != nil {
		return nil, err
	}
	return verdict.NewProcessor(engine, cfg.Engine.DefaultWeights), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
