package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/flowgraph"
)

var flagMode string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a reconstructed dependency graph",
	Long:  "Replays the selected journal session into a fresh engine and answers queries over the resulting graph.",
}

func init() {
	queryCmd.AddCommand(staleCmd)
	queryCmd.AddCommand(dependentsCmd)
	queryCmd.AddCommand(resolveCmd)
	queryCmd.AddCommand(planCmd)

	resolveCmd.Flags().StringVar(&flagMode, "mode", "all", "resolution mode: all|final|reverse")
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List every stale chain in the session",
	Args:  cobra.NoArgs,
	RunE:  runStale,
}

func runStale(cmd *cobra.Command, args []string) error {
	e, err := loadEngine()
	if err != nil {
		return outputError("stale", err)
	}
	defer e.Close()

	chains := e.Query().StaleChains()
	results := make([]CLIChain, len(chains))
	for i, c := range chains {
		results[i] = CLIChain{Chain: c, Stale: true}
	}
	return outputResult(CLIResult{Command: "stale", Results: results})
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <chain>",
	Short: "List the direct consumers of a chain's target",
	Args:  cobra.ExactArgs(1),
	RunE:  runDependents,
}

func runDependents(cmd *cobra.Command, args []string) error {
	e, err := loadEngine()
	if err != nil {
		return outputError("dependents", err)
	}
	defer e.Close()

	q := e.Query()
	deps, err := q.DependentsOf(cmd.Context(), args[0])
	if err != nil {
		return outputError("dependents", err)
	}
	results := make([]CLIChain, len(deps))
	for i, c := range deps {
		stale, _ := q.IsStale(cmd.Context(), c)
		results[i] = CLIChain{Chain: c, Stale: stale}
	}
	return outputResult(CLIResult{Command: "dependents", Results: results})
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <chain>",
	Short: "Resolve an access chain against the session's graph",
	Long:  "Walks a dotted/indexed access chain (\"lst[0].b\", \"obj.$attr\") and reports every resolved link. $ marks the suffix reactive, ! blocks reactivity.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	mode, err := parseMode(flagMode)
	if err != nil {
		return outputError("resolve", err)
	}

	e, err := loadEngine()
	if err != nil {
		return outputError("resolve", err)
	}
	defer e.Close()

	links, err := e.Query().Resolve(cmd.Context(), args[0], mode)
	if err != nil {
		return outputError("resolve", err)
	}
	return outputResult(CLIResult{Command: "resolve", Results: links})
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Drain the re-execution queue through the configured policy",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	e, err := loadEngine()
	if err != nil {
		return outputError("plan", err)
	}
	defer e.Close()

	plan, err := e.PlanReexec(cmd.Context())
	if err != nil {
		return outputError("plan", err)
	}
	return outputResult(CLIResult{Command: "plan", Results: plan})
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions recorded in the journal",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	if flagJournal == "" {
		return outputError("sessions", fmt.Errorf("no journal configured (use --journal)"))
	}
	j, err := flowgraph.OpenJournal(flagJournal)
	if err != nil {
		return outputError("sessions", err)
	}
	defer j.Close()

	sessions, err := j.Sessions()
	if err != nil {
		return outputError("sessions", err)
	}
	results := make([]CLISession, len(sessions))
	for i, s := range sessions {
		n, err := j.EventCount(s.ID)
		if err != nil {
			return outputError("sessions", err)
		}
		results[i] = CLISession{ID: s.ID, StartedAt: s.StartedAt.Format("2006-01-02 15:04:05"), Events: n}
	}
	return outputResult(CLIResult{Command: "sessions", Results: results})
}

// parseMode maps the --mode flag to a resolution mode.
func parseMode(s string) (flowgraph.Mode, error) {
	switch s {
	case "all":
		return flowgraph.ModeAll, nil
	case "final":
		return flowgraph.ModeFinal, nil
	case "reverse":
		return flowgraph.ModeReverse, nil
	}
	return flowgraph.ModeAll, fmt.Errorf("invalid mode %q: must be all, final, or reverse", s)
}

// outputResult writes a result in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so
// RunE can propagate it to Cobra. In JSON mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
