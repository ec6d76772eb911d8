package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatChainsText formats chain entries as aligned columns.
func formatChainsText(w io.Writer, chains []CLIChain) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tSTALE")
	for _, c := range chains {
		fmt.Fprintf(tw, "%s\t%v\n", c.Chain, c.Stale)
	}
	tw.Flush()
}

// formatLinksText formats resolved chain links as aligned columns.
func formatLinksText(w io.Writer, links []CLILink) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tKIND\tSTALE\tREACTIVE\tTERMINAL")
	for _, l := range links {
		reactive := ""
		if l.Reactive {
			reactive = "reactive"
		}
		if l.Blocking {
			reactive = "blocking"
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%v\n", l.Chain, l.Kind, l.Stale, reactive, l.Terminal)
	}
	tw.Flush()
}

// formatSessionsText formats journal sessions as aligned columns.
func formatSessionsText(w io.Writer, sessions []CLISession) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tEVENTS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.ID, s.StartedAt, s.Events)
	}
	tw.Flush()
}

// formatReplayText formats a replay summary as readable text.
func formatReplayText(w io.Writer, summary CLIReplaySummary) {
	fmt.Fprintf(w, "Session: %s (%d events)\n", summary.Session, summary.Events)
	if len(summary.StaleChains) == 0 {
		fmt.Fprintln(w, "No stale chains.")
	} else {
		fmt.Fprintln(w, "Stale chains:")
		for _, c := range summary.StaleChains {
			fmt.Fprintf(w, "  %s\n", c.Chain)
		}
	}
	if summary.Plan != nil {
		if len(summary.Plan) == 0 {
			fmt.Fprintln(w, "Re-execution plan: empty")
		} else {
			fmt.Fprintln(w, "Re-execution plan:")
			for _, c := range summary.Plan {
				fmt.Fprintf(w, "  %s\n", c)
			}
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on
// the result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLIChain:
		formatChainsText(w, v)
	case []CLILink:
		formatLinksText(w, v)
	case []CLISession:
		formatSessionsText(w, v)
	case CLIReplaySummary:
		formatReplayText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
