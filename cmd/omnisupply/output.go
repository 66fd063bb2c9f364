package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/supervisor"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - details

	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")) // Blue - supervisor phases

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta - agents

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow - timeouts, warnings
)

// encode writes v as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

// writeReport renders rep in format. Markdown is wrapped at width columns.
func writeReport(w io.Writer, rep *supervisor.Report, format string, width int) error {
	if format != "markdown" {
		return encode(w, format, rep)
	}
	text := rep.FinalReport
	if width > 0 {
		text = wordwrap.String(text, width)
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}

// agentInfo is the listing shape of one registered agent.
type agentInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
}

func writeAgents(w io.Writer, reg *agent.Registry, format string) error {
	caps := reg.Capabilities()
	infos := make([]agentInfo, 0, reg.Len())
	for _, name := range reg.Names() {
		infos = append(infos, agentInfo{Name: name, Capabilities: caps[name]})
	}
	if format != "markdown" {
		return encode(w, format, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(w, "## %s\n\n", info.Name)
		for _, c := range info.Capabilities {
			fmt.Fprintf(w, "- %s\n", c)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// progress prints supervisor callbacks to a terminal.
type progress struct {
	w     io.Writer
	quiet bool
}

func (p progress) phase(ph supervisor.Phase, detail string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", phaseStyle.Render("▸ "+string(ph)), dimStyle.Render(detail))
}

func (p progress) agentStart(name string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "  %s %s\n", agentStyle.Render("⊕"), name)
}

func (p progress) agentDone(name string, res agent.Result, d time.Duration) {
	if p.quiet {
		return
	}
	mark, detail := successStyle.Render("✓"), ""
	switch {
	case res.TimedOut:
		mark, detail = warnStyle.Render("⏱"), res.Error
	case !res.Success:
		mark, detail = failStyle.Render("✗"), res.Error
	}
	fmt.Fprintf(p.w, "  %s %s %s %s\n", mark, name, dimStyle.Render(d.Round(time.Millisecond).String()), detail)
}

func (p progress) warn(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("warning: "+fmt.Sprintf(format, args...)))
}
