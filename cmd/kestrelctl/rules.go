package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type rulesOptions struct {
	url     string
	tenant  string
	timeout time.Duration
}

func newRulesCmd(root *rootOptions) *cobra.Command {
	opts := &rulesOptions{}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the resolution table",
		Long: `Print the resolution table in evaluation order. Without --url the builtin
table is printed; with --url the server's table, custom rules included, is fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var table []domain.RuleSummary
			if opts.url == "" {
				p, err := root.localProcessor()
				if err != nil {
					return err
				}
				table = p.Rules.Summaries()
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
				defer cancel()

				remote, err := fetchRules(ctx, opts.url, opts.tenant)
				if err != nil {
					return err
				}
				table = remote
			}
			return writeRules(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "Kestrel base URL")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "kestrelctl", "Tenant ID for requests")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

func fetchRules(ctx context.Context, baseURL, tenant string) ([]domain.RuleSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/rules", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenant)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body struct {
		Rules []domain.RuleSummary `json:"rules"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Rules, nil
}

func writeRules(w io.Writer, table []domain.RuleSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tID\tNAME\tSOURCE")
	for _, r := range table {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Priority, r.ID, r.Name, r.Source)
	}
	return tw.Flush()
}
