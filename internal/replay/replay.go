package replay

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vinayprograms/omnisupply/internal/session"
)

// Replayer formats session logs.
type Replayer struct {
	output  io.Writer
	verbose bool // show agent metrics and full errors
}

// New creates a Replayer writing to output.
func New(output io.Writer, verbose bool) *Replayer {
	return &Replayer{output: output, verbose: verbose}
}

// Replay writes the header, timeline and summary of sess.
func (r *Replayer) Replay(sess *session.Session) {
	r.printHeader(sess)
	r.printTimeline(sess)
	r.printSummary(sess)
}

// Render returns the Replay output as a string.
func (r *Replayer) Render(sess *session.Session) string {
	var buf strings.Builder
	(&Replayer{output: &buf, verbose: r.verbose}).Replay(sess)
	return buf.String()
}

// ReplayInteractive shows the timeline in a scrollable pager.
func (r *Replayer) ReplayInteractive(sess *session.Session) error {
	return NewPager(fmt.Sprintf("Session: %s", sess.ID)).Run(r.Render(sess))
}

func (r *Replayer) printHeader(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("SESSION"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Query:   "), valueStyle.Render(sess.Query))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status:  "), statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created: "), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	if sess.ReportID != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Report:  "), valueStyle.Render(sess.ReportID))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(sess *session.Session) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)
	for i := range sess.Events {
		r.formatEvent(&sess.Events[i])
	}
}

func (r *Replayer) printSummary(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)
	switch sess.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(sess.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}
	PrintStats(r.output, ComputeStats(sess))
}

// formatEvent writes one "seq │ time │ content" timeline row.
func (r *Replayer) formatEvent(e *session.Event) {
	seq := seqStyle.Render(strconv.FormatUint(e.SeqID, 10))
	ts := timeStyle.Render(e.Timestamp.Format("15:04:05.000"))
	row := func(content string) {
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, content)
	}

	switch e.Type {
	case session.EventRequestStart:
		row(titleStyle.Render("REQUEST") + " " + valueStyle.Render(e.Content))

	case session.EventPhase:
		line := phaseStyle.Render("PHASE " + e.Phase)
		if e.Content != "" {
			line += " " + dimStyle.Render(e.Content)
		}
		row(line)

	case session.EventAgentStart:
		row(agentStyle.Render("▶ " + e.Agent))

	case session.EventAgentEnd:
		mark, detail := successStyle.Render("✓"), ""
		switch {
		case e.TimedOut:
			mark, detail = warnStyle.Render("⏱"), warnStyle.Render("timed out")
		case e.Success == nil || !*e.Success:
			mark, detail = errorStyle.Render("✗"), errorStyle.Render(r.clip(e.Error))
		}
		line := fmt.Sprintf("%s %s %s", mark, agentStyle.Render(e.Agent), dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(e.DurationMs))))
		if detail != "" {
			line += " " + detail
		}
		row(line)
		if r.verbose && len(e.Metrics) > 0 {
			fmt.Fprintf(r.output, "      │              │   %s\n", dimStyle.Render(formatMetrics(e.Metrics)))
		}

	case session.EventAlerts:
		row(warnStyle.Render("ALERTS") + " " + valueStyle.Render(e.Content))

	case session.EventRequestEnd:
		if e.Success != nil && *e.Success {
			row(successStyle.Render("END") + " " + dimStyle.Render("report "+e.Content))
		} else {
			row(errorStyle.Render("END") + " " + errorStyle.Render(r.clip(e.Error)))
		}

	default:
		row(dimStyle.Render(e.Type) + " " + e.Content)
	}
}

// clip shortens errors outside verbose mode.
func (r *Replayer) clip(s string) string {
	if r.verbose {
		return s
	}
	return truncate(s, 80)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusComplete:
		return successStyle
	case session.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

// List renders a table of sessions, one row each.
func List(sessions []*session.Session) *table.Table {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "CREATED", "STATUS", "AGENTS", "QUERY").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return cell.Bold(true)
			case col == 2 && row >= 0 && row < len(sessions):
				return cell.Inherit(statusStyle(sessions[row].Status))
			case col == 0 || col == 1:
				return cell.Inherit(dimStyle)
			default:
				return cell
			}
		})
	for _, s := range sessions {
		t.Row(
			shortID(s.ID),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.Status,
			strconv.Itoa(len(s.EventsOf(session.EventAgentEnd))),
			truncate(s.Query, 60),
		)
	}
	return t
}

// shortID is the leading block of a UUID, enough to pick a session.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func formatMetrics(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, k+"="+strconv.FormatFloat(m[k], 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
