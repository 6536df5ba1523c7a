// ABOUTME: Bubbletea model for the playback TUI
// ABOUTME: Shows position, per-channel level meters, volume and conduit health
package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sendspin/peakd/pkg/audio"
	tea "github.com/charmbracelet/bubbletea"
)

const meterWidth = 40

// Model represents the TUI state
type Model struct {
	// Stream
	file       string
	sampleRate int
	channels   int
	position   time.Duration
	duration   time.Duration
	finished   bool

	// Meters, one per channel
	levels []audio.Peak
	clips  []int

	// Playback
	volume int
	muted  bool

	// Conduit health
	buffered     int
	underruns    uint64
	silentFrames uint64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	volumeCtrl *VolumeControl
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderMeters()
	s += m.renderControls()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()
	return s
}

// renderHeader renders file and position
func (m Model) renderHeader() string {
	state := "Playing"
	if m.finished {
		state = "Finished"
	}

	return fmt.Sprintf(`┌─ peakplay ───────────────────────────────────────────┐
│ File:   %-45s │
│ Format: %-45s │
│ %-8s %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(filepath.Base(m.file), 45),
		fmt.Sprintf("%dHz %s", m.sampleRate, channelName(m.channels)),
		state+":", fmt.Sprintf("%s / %s", formatDuration(m.position), formatDuration(m.duration)))
}

// renderMeters renders one bar per channel from the latest peak
func (m Model) renderMeters() string {
	if len(m.levels) == 0 {
		return "│ No signal yet                                        │\n"
	}

	var b strings.Builder
	for ch, p := range m.levels {
		clip := " "
		if ch < len(m.clips) && m.clips[ch] > 0 {
			clip = "!"
		}
		b.WriteString(fmt.Sprintf("│ %2d [%s]%s %5.1f │\n", ch+1, renderBar(level(p), meterWidth), clip, dbfs(p)))
	}
	return b.String()
}

// renderControls renders volume and conduit status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	return fmt.Sprintf("├──────────────────────────────────────────────────────┤\n"+
		"│ Volume: [%s] %3d%%%-22s │\n"+
		"│ Buffer: %-6d frames  Under-runs: %-14d │\n",
		renderBar(float64(m.volume)/100, 10), m.volume, muteIcon,
		m.buffered, m.underruns)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG: silent frames %-31d │\n", m.silentFrames)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.sendVolume()
	case "down":
		m.volume = max(m.volume-5, 0)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.File != "" {
		m.file = msg.File
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.duration = msg.Duration
	}
	if msg.Levels != nil {
		m.levels = msg.Levels
		if len(m.clips) != len(msg.Levels) {
			m.clips = make([]int, len(msg.Levels))
		}
		for ch, p := range msg.Levels {
			if p.Clipped() {
				m.clips[ch]++
			}
		}
	}
	m.position = max(m.position, msg.Position)
	m.buffered = msg.Buffered
	m.underruns = max(m.underruns, msg.Underruns)
	m.silentFrames = max(m.silentFrames, msg.SilentFrames)
	if msg.Finished {
		m.finished = true
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	File         string
	SampleRate   int
	Channels     int
	Duration     time.Duration
	Position     time.Duration
	Levels       []audio.Peak
	Buffered     int
	Underruns    uint64
	SilentFrames uint64
	Finished     bool
}

// level returns the larger magnitude of a peak, clamped to [0, 1]
func level(p audio.Peak) float64 {
	v := max(float64(p.Max), -float64(p.Min), 0)
	return min(v, 1)
}

// dbfs returns the level of p in dB relative to full scale, floored at -99
func dbfs(p audio.Peak) float64 {
	v := max(float64(p.Max), -float64(p.Min))
	if v <= 0 {
		return -99
	}
	return max(20*math.Log10(v), -99)
}

// Utility functions
func renderBar(fraction float64, width int) string {
	filled := int(fraction*float64(width) + 0.5)
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
