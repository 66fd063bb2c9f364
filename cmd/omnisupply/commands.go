package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/config"
	"github.com/vinayprograms/omnisupply/internal/session"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/supervisor"
)

// Run answers the query and prints the report. A hard supervisor failure
// still prints the error report and then exits non-zero.
func (c *RunCmd) Run(g *Globals, out io.Writer) error {
	query := strings.TrimSpace(strings.Join(c.Query, " "))
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()
	if !rt.online {
		return fmt.Errorf("%w: set [llm].model in %s", errNoModel, config.DefaultFile)
	}

	prog := progress{w: os.Stderr, quiet: c.Quiet}
	if err := rt.connectNotifier(); err != nil {
		prog.warn("alerts will not be published: %v", err)
	}

	sup, err := rt.newSupervisor()
	if err != nil {
		return err
	}

	var (
		sessions *session.FileStore
		sess     *session.Session
	)
	if !c.NoSession {
		sessions, err = session.NewFileStore(config.ExpandPath(cfg.Storage.SessionsDir))
		if err == nil {
			sess, err = sessions.Create(query)
		}
		if err != nil {
			prog.warn("session log disabled: %v", err)
			sess = nil
		}
	}
	wireCallbacks(sup, prog, rt, sess)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := sup.Execute(ctx, query)

	// Bookkeeping still runs after Ctrl-C.
	bg := context.WithoutCancel(ctx)
	alerts := rt.alerts.drain()
	if err := rt.saveAlerts(bg, alerts); err != nil {
		prog.warn("%v", err)
	}
	if sess != nil {
		if len(alerts) > 0 {
			sess.AddEvent(session.Event{Type: session.EventAlerts, Content: fmt.Sprintf("%d alerts raised", len(alerts))})
		}
		sess.Finish(rep.ID, runErr)
		if err := sessions.Save(sess); err != nil {
			prog.warn("saving session: %v", err)
		}
	}
	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
	}
	if err := rt.persistReport(bg, rep, sessionID); err != nil {
		prog.warn("%v", err)
	}

	if err := writeReport(out, rep, c.Format, c.Width); err != nil {
		return err
	}
	return runErr
}

// wireCallbacks routes supervisor progress to the terminal, the session log
// and the telemetry exporter.
func wireCallbacks(sup *supervisor.Supervisor, prog progress, rt *runtime, sess *session.Session) {
	sup.OnPhase = func(p supervisor.Phase, detail string) {
		prog.phase(p, detail)
		if sess != nil {
			sess.Phase(string(p), detail)
		}
		rt.telem.LogEvent("phase_complete", map[string]interface{}{"phase": string(p), "detail": detail})
	}
	sup.OnAgentStart = func(name string) {
		prog.agentStart(name)
		if sess != nil {
			sess.AgentStart(name)
		}
		rt.telem.LogEvent("agent_start", map[string]interface{}{"agent": name})
	}
	sup.OnAgentComplete = func(name string, res agent.Result, d time.Duration) {
		prog.agentDone(name, res, d)
		if sess != nil {
			sess.AgentEnd(name, res.Success, res.TimedOut, res.Error, d, res.Metrics)
		}
		rt.telem.LogEvent("agent_complete", map[string]interface{}{
			"agent":       name,
			"success":     res.Success,
			"timed_out":   res.TimedOut,
			"duration_ms": d.Milliseconds(),
		})
	}
}

// Run lists the registered agents.
func (c *AgentsCmd) Run(g *Globals, out io.Writer) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()
	return writeAgents(out, rt.registry, c.Format)
}

// Run prints the row count of every table.
func (c *HealthCmd) Run(g *Globals, out io.Writer) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	path := config.ExpandPath(cfg.Storage.Path)
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	counts, err := store.TableCounts(ctx)
	if err != nil {
		fmt.Fprintf(out, "database: %s %s\n", path, failStyle.Render("unhealthy"))
		return err
	}

	fmt.Fprintf(out, "database: %s %s\n\n", path, successStyle.Render("ok"))
	_, err = fmt.Fprintln(out, healthTable(counts))
	return err
}

// healthTable renders row counts in schema order; empty tables are dimmed.
func healthTable(counts map[string]int) *table.Table {
	rows := make([][]string, len(storage.Tables))
	for i, t := range storage.Tables {
		rows[i] = []string{t, strconv.Itoa(counts[t])}
	}
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("TABLE", "ROWS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return cell.Bold(true)
			case col == 0 || row < 0 || row >= len(rows):
				return cell
			case rows[row][1] == "0":
				return cell.Inherit(dimStyle).Align(lipgloss.Right)
			default:
				return cell.Inherit(successStyle).Align(lipgloss.Right)
			}
		})
}

// Run creates the schema and optionally loads the demo data set.
func (c *InitDBCmd) Run(g *Globals, out io.Writer) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	path := config.ExpandPath(cfg.Storage.Path)
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Fprintf(out, "✓ Schema ready at %s\n", path)

	if !c.Sample {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.LoadSample(ctx, time.Now()); err != nil {
		return errors.Join(errors.New("loading sample data"), err)
	}
	fmt.Fprintln(out, "✓ Sample data loaded")
	return nil
}
