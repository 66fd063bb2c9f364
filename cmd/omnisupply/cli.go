// Package main defines the CLI structure using kong.
package main

import (
	"time"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" type:"path" help:"Config file path (default: ./omnisupply.toml)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run      RunCmd      `cmd:"" help:"Answer a supply-chain question"`
	Agents   AgentsCmd   `cmd:"" help:"List registered agents and their capabilities"`
	Health   HealthCmd   `cmd:"" help:"Check the database and show table sizes"`
	InitDB   InitDBCmd   `cmd:"" name:"init-db" help:"Create the database schema"`
	Watch    WatchCmd    `cmd:"" help:"Run periodic risk checks"`
	Sessions SessionsCmd `cmd:"" help:"List and replay recorded sessions"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd sends one request through the supervisor.
type RunCmd struct {
	Query     []string `arg:"" help:"The question to answer"`
	Format    string   `short:"o" enum:"markdown,json,yaml" default:"markdown" help:"Output format (markdown, json, yaml)"`
	Width     int      `default:"100" help:"Wrap markdown output at this width (0 disables)"`
	NoSession bool     `help:"Do not write a session log"`
	Quiet     bool     `short:"q" help:"Suppress progress output"`
}

// AgentsCmd lists the registry.
type AgentsCmd struct {
	Format string `short:"o" enum:"markdown,json,yaml" default:"markdown" help:"Output format (markdown, json, yaml)"`
}

// HealthCmd reports database connectivity.
type HealthCmd struct{}

// InitDBCmd creates the schema and optionally loads demo data.
type InitDBCmd struct {
	Sample bool `help:"Load the deterministic demo data set"`
}

// WatchCmd runs the risk agent on a schedule.
type WatchCmd struct {
	Interval    time.Duration `default:"15m" help:"Time between risk checks"`
	MetricsAddr string        `help:"Prometheus listen address (overrides [metrics].addr)"`
	Once        bool          `help:"Run a single check and exit"`
}

// SessionsCmd browses the session logs written by run.
type SessionsCmd struct {
	List SessionsListCmd `cmd:"" default:"1" help:"List sessions, newest first"`
	Show SessionsShowCmd `cmd:"" help:"Replay one session"`
}

// SessionsListCmd lists recorded sessions.
type SessionsListCmd struct {
	Limit int `short:"n" default:"20" help:"Show at most this many sessions (0 for all)"`
}

// SessionsShowCmd replays one session's timeline.
type SessionsShowCmd struct {
	ID      string `arg:"" help:"Session ID or a unique prefix of it"`
	Verbose bool   `short:"v" help:"Show agent metrics and full errors"`
	NoPager bool   `help:"Disable the interactive pager (for piping)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
