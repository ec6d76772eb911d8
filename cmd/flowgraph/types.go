package main

import "github.com/jward/flowgraph"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIChain is a JSON-friendly stale/dependent chain entry.
type CLIChain struct {
	Chain string `json:"chain"`
	Stale bool   `json:"stale"`
}

// CLILink mirrors flowgraph.Link for output.
type CLILink = flowgraph.Link

// CLISession is a JSON-friendly journal session entry.
type CLISession struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`
	Events    int64  `json:"events"`
}

// CLIReplaySummary is the replay command's output.
type CLIReplaySummary struct {
	Session     string     `json:"session"`
	Events      int64      `json:"events"`
	StaleChains []CLIChain `json:"stale_chains"`
	Plan        []string   `json:"plan,omitempty"`
}
