package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/flowgraph"
)

var flagPlan bool

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded session and report the resulting stale set",
	Long:  "Drives a fresh engine with the journal session's event stream and prints which chains ended up stale. With --plan, also drains the re-execution queue through the configured policy.",
	Args:  cobra.NoArgs,
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&flagPlan, "plan", false, "also compute the re-execution plan")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if flagJournal == "" {
		return outputError("replay", fmt.Errorf("no journal configured (use --journal)"))
	}

	e, err := loadEngine()
	if err != nil {
		return outputError("replay", err)
	}
	defer e.Close()

	j, err := flowgraph.OpenJournal(flagJournal)
	if err != nil {
		return outputError("replay", err)
	}
	defer j.Close()
	count, err := j.EventCount(flagSession)
	if err != nil {
		return outputError("replay", err)
	}

	summary := CLIReplaySummary{Session: flagSession, Events: count}
	for _, c := range e.Query().StaleChains() {
		summary.StaleChains = append(summary.StaleChains, CLIChain{Chain: c, Stale: true})
	}
	if flagPlan {
		plan, err := e.PlanReexec(cmd.Context())
		if err != nil {
			return outputError("replay", err)
		}
		summary.Plan = plan
	}
	return outputResult(CLIResult{Command: "replay", Results: summary})
}
