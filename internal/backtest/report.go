package backtest

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// WriteReport prints the confusion matrix and summary.
func WriteReport(w io.Writer, r *Report) error {
	fmt.Fprintln(w, "CONFUSION MATRIX (rows: expected, columns: got)")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, v := range Verdicts {
		fmt.Fprintf(tw, "%s\t", v)
	}
	fmt.Fprintln(tw)
	for _, expected := range Verdicts {
		fmt.Fprintf(tw, "%s\t", expected)
		for _, got := range Verdicts {
			fmt.Fprintf(tw, "%d\t", r.Matrix[expected][got])
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scenarios:  %d\n", r.Total)
	fmt.Fprintf(w, "Correct:    %d\n", r.Correct)
	fmt.Fprintf(w, "Errors:     %d\n", r.Errors)
	fmt.Fprintf(w, "Accuracy:   %.4f\n", r.Accuracy())
	fmt.Fprintf(w, "Duration:   %v\n", r.Duration.Round(time.Millisecond))

	if len(r.Mismatches) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "MISMATCHES")
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  %-32s expected %-8s got %s\n", m.Name, m.Expected, m.Got)
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
