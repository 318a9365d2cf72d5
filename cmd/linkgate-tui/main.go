package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/linkgate/pkg/client"
)

// Config
const (
	pollRate       = time.Second
	fetchTimeout   = 500 * time.Millisecond
	viewportHeight = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	// Layout styles
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	// Link row styles
	idStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Width(22)
	endStyle  = lipgloss.NewStyle().Width(22)
	selfStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

type dataMsg struct {
	links []client.Link
	err   error
}

// summary is derived from one snapshot of the store.
type summary struct {
	total     int
	sources   int
	targets   int
	selfLinks int
}

func summarize(ls []client.Link) summary {
	sources := make(map[uint64]struct{})
	targets := make(map[uint64]struct{})
	s := summary{total: len(ls)}
	for _, l := range ls {
		sources[l.FromID] = struct{}{}
		targets[l.ToID] = struct{}{}
		if l.FromID == l.ID && l.ToID == l.ID {
			s.selfLinks++
		}
	}
	s.sources = len(sources)
	s.targets = len(targets)
	return s
}

type model struct {
	api      *client.Client
	spinner  spinner.Model
	viewport viewport.Model
	links    []client.Link
	err      error
	ready    bool
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func initialModel(api *client.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      api,
		spinner:  s,
		viewport: newViewport(100),
		links:    []client.Link{},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchLinks(m.api),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// Pass key messages to viewport
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchLinks(m.api), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.links = msg.links
			m.updateViewportContent()
		}
		m.ready = true

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = newViewport(msg.Width)
			m.updateViewportContent()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *model) updateViewportContent() {
	var sb strings.Builder
	for _, l := range m.links {
		from := fmt.Sprint(l.FromID)
		to := fmt.Sprint(l.ToID)
		if l.FromID == l.ID {
			from = selfStyle.Render(from)
		}
		if l.ToID == l.ID {
			to = selfStyle.Render(to)
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n",
			idStyle.Render(fmt.Sprint(l.ID)),
			endStyle.Render(from),
			endStyle.Render(to),
		))
	}
	m.viewport.SetContent(sb.String())
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.api.Endpoint())
	}

	s := summarize(m.links)
	var top strings.Builder
	top.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Store") + "\n\n")
	if s.total == 0 {
		top.WriteString(subtleStyle.Render("No links stored."))
	} else {
		top.WriteString(fmt.Sprintf("• %d links\n", s.total))
		top.WriteString(fmt.Sprintf("• %d distinct sources, %d distinct targets\n", s.sources, s.targets))
		top.WriteString(fmt.Sprintf("• %d self links", s.selfLinks))
	}
	topPane := paneStyle.Render(top.String())

	header := headerStyle.Render(fmt.Sprintf("%s %-22s %-22s %s", m.spinner.View(), "ID", "FROM", "TO"))
	bottomPane := m.viewport.View()

	// Status Footer
	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %s", m.api.Endpoint()))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, bottomPane, footer)
}

// Commands

func fetchLinks(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		ls, err := api.Links(ctx)
		return dataMsg{links: ls, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := flag.String("endpoint", os.Getenv("LINKGATE_ENDPOINT"), "linkgate-d base URL")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*endpoint)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
