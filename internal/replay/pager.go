package replay

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Pager is an interactive terminal pager.
type Pager struct {
	title string
}

// NewPager creates a pager with the given header title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		&pagerModel{title: p.title, content: content},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// pagerModel is the Bubble Tea model for the pager.
type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string // content wrapped to the viewport width
	ready    bool

	searching   bool
	searchInput textinput.Model
	searchQuery string
	matches     []int // wrapped line numbers
	matchIndex  int
	notFound    bool
}

func (m *pagerModel) Init() tea.Cmd { return nil }

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.searchQuery = m.searchInput.Value()
				m.searching = false
				m.search()
				if len(m.matches) > 0 {
					m.jumpTo(0)
				}
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				m.clearSearch()
				return m, nil
			}
		}
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.searchQuery == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "/":
			m.searching = true
			m.searchInput = textinput.New()
			m.searchInput.Placeholder = "Search..."
			m.searchInput.CharLimit = 100
			m.searchInput.Width = 40
			m.searchInput.SetValue(m.searchQuery)
			m.searchInput.Focus()
			return m, textinput.Blink
		case "n":
			if len(m.matches) > 0 {
				m.jumpTo((m.matchIndex + 1) % len(m.matches))
			}
		case "N":
			if len(m.matches) > 0 {
				m.jumpTo((m.matchIndex - 1 + len(m.matches)) % len(m.matches))
			}
		}

	case tea.WindowSizeMsg:
		const chrome = 2 // header and footer lines
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		m.wrapped = wrapContent(m.content, msg.Width)
		m.viewport.SetContent(m.wrapped)
		if m.searchQuery != "" {
			m.search()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *pagerModel) clearSearch() {
	m.searchQuery = ""
	m.matches = nil
	m.notFound = false
}

// search records the wrapped lines containing the query, ignoring case.
func (m *pagerModel) search() {
	m.matches = nil
	m.matchIndex = 0
	m.notFound = false
	if m.searchQuery == "" {
		return
	}
	q := strings.ToLower(m.searchQuery)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
	m.notFound = len(m.matches) == 0
}

// jumpTo centres match i on screen where possible.
func (m *pagerModel) jumpTo(i int) {
	if i < 0 || i >= len(m.matches) {
		return
	}
	m.matchIndex = i
	offset := m.matches[i] - m.viewport.Height/2
	offset = min(offset, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(max(0, offset))
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	rule := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(rule))

	if m.searching {
		return header + "\n" + m.viewport.View() + "\n" + warnStyle.Render("/") + m.searchInput.View()
	}

	info := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
	var help string
	switch {
	case m.notFound:
		help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(m.matches) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ /: search │ esc: clear ",
			warnStyle.Render(fmt.Sprintf("[%d/%d]", m.matchIndex+1, len(m.matches))))
	default:
		help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
	}
	fill := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	footer := pagerInfoStyle.Render(help) + pagerInfoStyle.Render(fill) + pagerInfoStyle.Render(info)

	return header + "\n" + m.viewport.View() + "\n" + footer
}

// wrapContent wraps each line to width. Timeline rows wrap under their
// content column so the seq and time columns stay aligned.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}

		if last := strings.LastIndex(line, "│"); last > 0 && last < len(line)-len("│") {
			start := last + len("│")
			for start < len(line) && line[start] == ' ' {
				start++
			}
			prefix := line[:start]
			indent := lipgloss.Width(prefix)
			lines := strings.Split(wordwrap.String(line[start:], max(20, width-indent)), "\n")
			out = append(out, prefix+lines[0])
			for _, l := range lines[1:] {
				out = append(out, strings.Repeat(" ", indent)+l)
			}
			continue
		}

		out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(out, "\n")
}
