// ABOUTME: Server TUI for displaying connections and cache stats
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sendspin/peakd/internal/version"
	"github.com/Sendspin/peakd/pkg/peaks"
	"github.com/Sendspin/peakd/pkg/source"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server

	mu      sync.Mutex
	stopped bool
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name        string
	Addr        string
	WSAddr      string
	StartTime   time.Time
	Connections []ConnInfo
	Cache       peaks.CacheStats
	Sources     source.RegistryStats
}

// ConnInfo holds connection information for display
type ConnInfo struct {
	ID        string
	Remote    string
	Transport string
	Requests  uint64
	Since     time.Duration
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status   ServerStatus
	quitting bool
	quitChan chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
)

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(version.String()))
	b.WriteString("\n\n")

	field(&b, "Server", m.status.Name)
	field(&b, "TCP", m.status.Addr)
	if m.status.WSAddr != "" {
		field(&b, "WebSocket", m.status.WSAddr+"/peaks")
	}
	field(&b, "Uptime", time.Since(m.status.StartTime).Round(time.Second).String())
	b.WriteString("\n")

	c := m.status.Cache
	b.WriteString(sectionStyle.Render("Peak Cache"))
	b.WriteString("\n")
	field(&b, "  Entries", fmt.Sprintf("%d (%s)", c.Entries, humanize.IBytes(uint64(c.Bytes))))
	field(&b, "  Hits/Misses", fmt.Sprintf("%d / %d (%.0f%%)", c.Hits, c.Misses, hitRate(c)))
	field(&b, "  Reductions", fmt.Sprintf("%d (store hits %d, evictions %d)", c.Reductions, c.StoreHits, c.Evictions))
	field(&b, "  Open sources", fmt.Sprintf("%d (%d handles)", m.status.Sources.Entries, m.status.Sources.Handles))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Connections (%d)", len(m.status.Connections))))
	b.WriteString("\n\n")

	if len(m.status.Connections) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, conn := range m.status.Connections {
			b.WriteString(fmt.Sprintf("  • %s", conn.Remote))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d requests, %s)",
				conn.Transport, conn.Requests, conn.Since.Round(time.Second))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func hitRate(c peaks.CacheStats) float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) * 100 / float64(total)
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until Stop or the user quits
func (t *ServerTUI) Start(initial ServerStatus) error {
	m := tuiModel{
		status:   initial,
		quitChan: t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.program = program
	t.mu.Unlock()

	go func() {
		for status := range t.updates {
			program.Send(statusMsg(status))
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI; it is a no-op after Stop
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
