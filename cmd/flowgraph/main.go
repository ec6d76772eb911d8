package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jward/flowgraph"
)

var (
	flagJournal string
	flagSession string
	flagConfig  string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "flowgraph",
	Short:         "Runtime dependency and staleness graph engine",
	Long:          "Flowgraph reconstructs a session's dependency graph from a recorded event journal and answers staleness, dependency, and re-execution queries over it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if flagJournal == "" {
			flagJournal = os.Getenv("FLOWGRAPH_JOURNAL")
		}
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagJournal, "journal", "", "journal database path (or FLOWGRAPH_JOURNAL)")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "default", "journal session name")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log engine diagnostics to stderr")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// loadEngine builds a fresh engine and, when a journal is configured,
// replays the selected session into it.
func loadEngine() (*flowgraph.Engine, error) {
	var opts []flowgraph.Option
	if flagConfig != "" {
		cfg, err := flowgraph.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		if flagJournal == "" {
			flagJournal = cfg.Journal.Path
		}
		if cfg.Journal.Session != "" && !rootCmd.PersistentFlags().Changed("session") {
			flagSession = cfg.Journal.Session
		}
		if cfg.Policy.Script != "" {
			opts = append(opts, flowgraph.WithPolicyScriptFile(cfg.Policy.Script))
		}
		if cfg.DebugChecks {
			opts = append(opts, flowgraph.WithDebugChecks())
		}
	}
	if flagVerbose {
		opts = append(opts, flowgraph.WithLogger(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	}

	e, err := flowgraph.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	if flagJournal == "" {
		return e, nil
	}
	j, err := flowgraph.OpenJournal(flagJournal)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()
	if err := e.ReplayFrom(j, flagSession); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}
