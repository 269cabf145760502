package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type scoreOptions struct {
	file   string
	format string
}

// scoreInput matches the POST /verdict body.
type scoreInput struct {
	Bundle    domain.SignalBundle `json:"bundle"`
	Conflicts []domain.Conflict   `json:"conflicts,omitempty"`
}

type scoreOutput struct {
	Score      float64                  `json:"score"`
	Gated      bool                     `json:"gated"`
	GatedBy    string                   `json:"gatedBy,omitempty"`
	Resolution domain.ResolutionContext `json:"resolution"`
	Result     domain.VerdictResult     `json:"result"`
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Resolve one signal bundle in-process",
		Long: `Resolve one signal bundle with the builtin resolution table and print the verdict.
The input has the same shape as the POST /verdict body.

Examples:
  kestrelctl score --file bundle.json
  cat bundle.json | kestrelctl score --format text`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if opts.file != "" && opts.file != "-" {
				f, err := os.Open(opts.file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var input scoreInput
			if err := json.NewDecoder(in).Decode(&input); err != nil {
				return fmt.Errorf("failed to decode bundle: %w", err)
			}
			if !input.Bundle.Regime.Type.Valid() {
				return fmt.Errorf("unknown regime type %q", input.Bundle.Regime.Type)
			}

			p, err := root.localProcessor()
			if err != nil {
				return err
			}
			out := p.Evaluate(&input.Bundle, input.Conflicts)

			return writeScore(cmd.OutOrStdout(), opts.format, scoreOutput{
				Score:      out.Score,
				Gated:      out.Gated,
				GatedBy:    out.GatedBy,
				Resolution: out.Resolution,
				Result:     out.Result,
			})
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Bundle JSON file (default stdin)")
	cmd.Flags().StringVar(&opts.format, "format", "json", "Output format: json, text")

	return cmd
}

func writeScore(w io.Writer, format string, out scoreOutput) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text":
		r := out.Result
		fmt.Fprintf(w, "Verdict:     %s (%s conviction, %d%% confidence)\n", r.Verdict, r.Conviction, r.Confidence)
		fmt.Fprintf(w, "Score:       %.1f\n", out.Score)
		fmt.Fprintf(w, "Driver:      %s\n", r.PrimaryDriver)
		fmt.Fprintf(w, "Sectors:     %s\n", r.SectorFocus)
		if out.Gated {
			fmt.Fprintf(w, "Gated by:    %s\n", out.GatedBy)
		}
		if len(out.Resolution.AppliedRules) > 0 {
			fmt.Fprintf(w, "Rules:       %s\n", strings.Join(out.Resolution.AppliedRules, ", "))
		}
		fmt.Fprintf(w, "\n%s\n\n%s\n", r.Explanation, r.ActionableTakeaway)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
