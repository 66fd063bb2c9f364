package replay

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/vinayprograms/omnisupply/internal/session"
)

// Stats aggregates the agent outcomes of one session.
type Stats struct {
	Duration time.Duration
	Phases   int

	Agents    int
	Succeeded int
	Failed    int
	TimedOut  int

	// Per-agent wall time in milliseconds.
	AgentMs map[string]int64
	// Slowest names the agent with the largest AgentMs.
	Slowest string

	AlertEvents int
}

// ComputeStats derives Stats from the session log.
func ComputeStats(sess *session.Session) *Stats {
	st := &Stats{
		Phases:      len(sess.EventsOf(session.EventPhase)),
		AlertEvents: len(sess.EventsOf(session.EventAlerts)),
		AgentMs:     make(map[string]int64),
	}
	for _, e := range sess.EventsOf(session.EventAgentEnd) {
		st.Agents++
		switch {
		case e.TimedOut:
			st.TimedOut++
		case e.Success != nil && *e.Success:
			st.Succeeded++
		default:
			st.Failed++
		}
		st.AgentMs[e.Agent] = e.DurationMs
		if st.Slowest == "" || e.DurationMs > st.AgentMs[st.Slowest] {
			st.Slowest = e.Agent
		}
	}
	if n := len(sess.Events); n > 0 {
		st.Duration = sess.Events[n-1].Timestamp.Sub(sess.Events[0].Timestamp)
	}
	return st
}

// PrintStats writes the statistics block.
func PrintStats(w io.Writer, st *Stats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("STATISTICS"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Duration:"), valueStyle.Render(formatDuration(st.Duration.Milliseconds())))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Phases:  "), valueStyle.Render(fmt.Sprintf("%d", st.Phases)))
	if st.Agents == 0 {
		return
	}
	fmt.Fprintf(w, "%s %s %s\n",
		labelStyle.Render("Agents:  "),
		valueStyle.Render(fmt.Sprintf("%d", st.Agents)),
		dimStyle.Render(fmt.Sprintf("(%d ok, %d failed, %d timed out)", st.Succeeded, st.Failed, st.TimedOut)))

	names := make([]string, 0, len(st.AgentMs))
	for name := range st.AgentMs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		mark := ""
		if name == st.Slowest && len(names) > 1 {
			mark = warnStyle.Render(" slowest")
		}
		fmt.Fprintf(w, "  %s %s%s\n", labelStyle.Render(name+":"), valueStyle.Render(formatDuration(st.AgentMs[name])), mark)
	}
	if st.AlertEvents > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Alerts:  "), warnStyle.Render("raised"))
	}
}

// formatDuration formats milliseconds as human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
