package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/backtest"
)

type backtestOptions struct {
	file        string
	url         string
	tenant      string
	workers     int
	timeout     time.Duration
	minAccuracy float64
}

func newBacktestCmd(root *rootOptions) *cobra.Command {
	opts := &backtestOptions{}

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay labelled scenarios and report accuracy",
		Long: `Replay a JSON lines file of labelled scenarios through the engine and print
a confusion matrix. Each line holds a name, a bundle, optional conflicts and
the expected verdict.

Examples:
  kestrelctl backtest --file scenarios.jsonl
  kestrelctl backtest --file scenarios.jsonl --url http://localhost:8080 --workers 20
  kestrelctl backtest --file scenarios.jsonl --min-accuracy 0.9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(opts.file)
			if err != nil {
				return err
			}
			defer f.Close()

			scenarios, err := backtest.LoadScenarios(f)
			if err != nil {
				return fmt.Errorf("failed to read scenarios: %w", err)
			}

			var eval backtest.Evaluator
			if opts.url == "" {
				p, err := root.localProcessor()
				if err != nil {
					return err
				}
				eval = &backtest.LocalEvaluator{Processor: p}
			} else {
				remote := backtest.NewHTTPEvaluator(opts.url, opts.tenant, opts.timeout)
				if err := remote.CheckHealth(cmd.Context()); err != nil {
					return fmt.Errorf("kestrel not reachable at %s: %w", opts.url, err)
				}
				eval = remote
			}

			report := backtest.Run(cmd.Context(), scenarios, eval, opts.workers)
			if err := backtest.WriteReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if report.Accuracy() < opts.minAccuracy {
				return fmt.Errorf("accuracy %.4f below minimum %.4f", report.Accuracy(), opts.minAccuracy)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Scenario file (JSON lines)")
	cmd.Flags().StringVar(&opts.url, "url", "", "Kestrel base URL; evaluates in-process when empty")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "backtest", "Tenant ID for requests")
	cmd.Flags().IntVar(&opts.workers, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request timeout")
	cmd.Flags().Float64Var(&opts.minAccuracy, "min-accuracy", 0, "Fail when accuracy is below this value")
	cmd.MarkFlagRequired("file")

	return cmd
}
