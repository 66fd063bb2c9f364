package main

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func TestRunCmd_Parse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	_, err = parser.Parse([]string{"run", "What", "is", "our", "risk?"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(cli.Run.Query) != 4 || cli.Run.Query[3] != "risk?" {
		t.Errorf("expected 4 query words, got %v", cli.Run.Query)
	}
	if cli.Run.Format != "markdown" {
		t.Errorf("expected default format markdown, got %s", cli.Run.Format)
	}
	if cli.Run.Width != 100 {
		t.Errorf("expected default width 100, got %d", cli.Run.Width)
	}
}

func TestRunCmd_ParseFlags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	_, err = parser.Parse([]string{"run", "-o", "json", "-q", "--no-session", "--width", "0", "Show revenue"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if cli.Run.Format != "json" || !cli.Run.Quiet || !cli.Run.NoSession || cli.Run.Width != 0 {
		t.Errorf("flags not applied: %+v", cli.Run)
	}
}

func TestRunCmd_RejectsUnknownFormat(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	if _, err := parser.Parse([]string{"run", "-o", "pdf", "q"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestInitDBCmd_Parse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	ctx, err := parser.Parse([]string{"init-db", "--sample"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if ctx.Command() != "init-db" {
		t.Errorf("expected init-db command, got %s", ctx.Command())
	}
	if !cli.InitDB.Sample {
		t.Error("expected --sample to be set")
	}
}

func TestWatchCmd_Parse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	_, err = parser.Parse([]string{"-c", "omni.toml", "watch", "--interval", "5m", "--once"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if cli.Watch.Interval != 5*time.Minute {
		t.Errorf("expected interval 5m, got %s", cli.Watch.Interval)
	}
	if !cli.Watch.Once {
		t.Error("expected --once to be set")
	}
	if cli.Config == "" {
		t.Error("expected config path to be set")
	}
}

func TestWatchCmd_DefaultInterval(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	if _, err := parser.Parse([]string{"watch"}); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if cli.Watch.Interval != 15*time.Minute {
		t.Errorf("expected default interval 15m, got %s", cli.Watch.Interval)
	}
}

func TestSessionsCmd_Parse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	ctx, err := parser.Parse([]string{"sessions"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if ctx.Command() != "sessions list" || cli.Sessions.List.Limit != 20 {
		t.Errorf("expected list by default, got %s with limit %d", ctx.Command(), cli.Sessions.List.Limit)
	}

	ctx, err = parser.Parse([]string{"sessions", "show", "3f2a9c1e", "-v", "--no-pager"})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if ctx.Command() != "sessions show <id>" {
		t.Errorf("expected sessions show, got %s", ctx.Command())
	}
	if cli.Sessions.Show.ID != "3f2a9c1e" || !cli.Sessions.Show.Verbose || !cli.Sessions.Show.NoPager {
		t.Errorf("flags not applied: %+v", cli.Sessions.Show)
	}
}
